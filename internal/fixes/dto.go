package fixes

import "time"

// Response is the JSON shape of a fix. Embeddings are never serialized.
type Response struct {
	ID                 string   `json:"id"`
	DocumentID         string   `json:"documentId"`
	ClientName         *string  `json:"clientName"`
	ClientAddress      *string  `json:"clientAddress"`
	ClientPhone        *string  `json:"clientPhone"`
	MachineModel       *string  `json:"machineModel"`
	MachineType        *string  `json:"machineType"`
	SerialNumber       *string  `json:"serialNumber"`
	ProblemDescription string   `json:"problemDescription"`
	SolutionApplied    string   `json:"solutionApplied"`
	PartsUsed          *string  `json:"partsUsed"`
	ServiceDate        *string  `json:"serviceDate"`
	TechnicianName     *string  `json:"technicianName"`
	TechnicianID       *string  `json:"technicianId"`
	LabourHours        *float64 `json:"labourHours"`
	EmbeddingModel     string   `json:"embeddingModel,omitempty"`
	CreatedAt          string   `json:"createdAt"`
}

// ToResponse converts a Fix to its JSON shape.
func ToResponse(f Fix) Response {
	resp := Response{
		ID:                 f.ID,
		DocumentID:         f.DocumentID,
		ClientName:         f.ClientName,
		ClientAddress:      f.ClientAddress,
		ClientPhone:        f.ClientPhone,
		MachineModel:       f.MachineModel,
		MachineType:        f.MachineType,
		SerialNumber:       f.SerialNumber,
		ProblemDescription: f.ProblemDescription,
		SolutionApplied:    f.SolutionApplied,
		PartsUsed:          f.PartsUsed,
		TechnicianName:     f.TechnicianName,
		TechnicianID:       f.TechnicianID,
		LabourHours:        f.LabourHours,
		EmbeddingModel:     f.EmbeddingModel,
		CreatedAt:          f.CreatedAt.UTC().Format(time.RFC3339),
	}
	if f.ServiceDate != nil {
		d := f.ServiceDate.Format(time.DateOnly)
		resp.ServiceDate = &d
	}
	return resp
}

// ToResponses converts a slice of fixes.
func ToResponses(list []Fix) []Response {
	out := make([]Response, 0, len(list))
	for _, f := range list {
		out = append(out, ToResponse(f))
	}
	return out
}
