package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExtractedFix is one validated record returned by the extraction model.
type ExtractedFix struct {
	ClientName         *string
	ClientAddress      *string
	ClientPhone        *string
	MachineModel       *string
	MachineType        *string
	SerialNumber       *string
	ProblemDescription string
	SolutionApplied    string
	PartsUsed          *string
	ServiceDate        *time.Time
	TechnicianName     *string
	TechnicianID       *string
	LabourHours        *float64
}

// SchemaError reports model output that does not match the fix schema.
type SchemaError struct {
	Index  int // -1 for envelope problems
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("extraction schema: %s", e.Reason)
	}
	return fmt.Sprintf("extraction schema: fixes[%d].%s %s", e.Index, e.Field, e.Reason)
}

const serviceDateLayout = "2006-01-02"

// ParseFixes validates raw extraction output of the form {"fixes": [...]}.
// Optional fields may be missing or null. problemDescription and
// solutionApplied must be non-empty strings. An unreadable serviceDate is
// dropped rather than rejected.
func ParseFixes(raw []byte) ([]ExtractedFix, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &envelope); err != nil {
		return nil, &SchemaError{Index: -1, Reason: "response is not a JSON object: " + err.Error()}
	}
	list, ok := envelope["fixes"]
	if !ok || isNull(list) {
		return nil, &SchemaError{Index: -1, Reason: `missing "fixes" array`}
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, &SchemaError{Index: -1, Reason: `"fixes" must be an array of objects`}
	}

	out := make([]ExtractedFix, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, &SchemaError{Index: i, Field: "", Reason: "must be an object"}
		}
		fix, err := parseFix(i, item)
		if err != nil {
			return nil, err
		}
		out = append(out, fix)
	}
	return out, nil
}

func parseFix(i int, item map[string]json.RawMessage) (ExtractedFix, error) {
	var fix ExtractedFix
	var err error

	if fix.ProblemDescription, err = requiredString(i, item, "problemDescription"); err != nil {
		return ExtractedFix{}, err
	}
	if fix.SolutionApplied, err = requiredString(i, item, "solutionApplied"); err != nil {
		return ExtractedFix{}, err
	}

	optional := []struct {
		field string
		dst   **string
	}{
		{"clientName", &fix.ClientName},
		{"clientAddress", &fix.ClientAddress},
		{"clientPhone", &fix.ClientPhone},
		{"machineModel", &fix.MachineModel},
		{"machineType", &fix.MachineType},
		{"serialNumber", &fix.SerialNumber},
		{"partsUsed", &fix.PartsUsed},
		{"technicianName", &fix.TechnicianName},
		{"technicianId", &fix.TechnicianID},
	}
	for _, o := range optional {
		if *o.dst, err = optionalString(i, item, o.field); err != nil {
			return ExtractedFix{}, err
		}
	}

	if fix.LabourHours, err = optionalNumber(i, item, "labourHours"); err != nil {
		return ExtractedFix{}, err
	}

	date, err := optionalString(i, item, "serviceDate")
	if err != nil {
		return ExtractedFix{}, err
	}
	if date != nil {
		if t, perr := time.Parse(serviceDateLayout, *date); perr == nil {
			fix.ServiceDate = &t
		}
	}
	return fix, nil
}

func requiredString(i int, item map[string]json.RawMessage, field string) (string, error) {
	v, err := optionalString(i, item, field)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", &SchemaError{Index: i, Field: field, Reason: "is required"}
	}
	return *v, nil
}

// optionalString returns nil for missing, null or blank values.
func optionalString(i int, item map[string]json.RawMessage, field string) (*string, error) {
	raw, ok := item[field]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &SchemaError{Index: i, Field: field, Reason: "must be a string or null"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// optionalNumber accepts a JSON number or a numeric string.
func optionalNumber(i int, item map[string]json.RawMessage, field string) (*float64, error) {
	raw, ok := item[field]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if n, perr := strconv.ParseFloat(s, 64); perr == nil {
			return &n, nil
		}
	}
	return nil, &SchemaError{Index: i, Field: field, Reason: "must be a number or null"}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
