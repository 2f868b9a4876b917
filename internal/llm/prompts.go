package llm

import "strings"

// ExtractionSystemPrompt frames the extraction request.
const ExtractionSystemPrompt = "You extract structured data from service documents. Always respond with valid JSON."

// SummarySystemPrompt frames the summary request.
const SummarySystemPrompt = "You create concise, searchable technical summaries of machine problems. " +
	"Focus on symptoms, failure modes and the components involved."

const extractionTemplate = `Extract every machine fix from the service report below.

For each fix return these fields:
- clientName
- clientAddress
- clientPhone
- machineModel
- machineType
- serialNumber
- problemDescription (required)
- solutionApplied (required)
- partsUsed
- serviceDate (YYYY-MM-DD)
- technicianName
- technicianId
- labourHours (number)

Use null for any value that is not present in the report. A report may contain
several fixes or none.

Respond with JSON in exactly this shape:
{"fixes": [{...}]}

Service report:
"""
{{TEXT}}
"""`

const summaryTemplate = `Summarize the following machine problem in 50 to 100 words.

Guidelines:
- Describe the symptoms and the failure mode.
- Name the components involved.
- Leave out dates, client names and people.

Problem:
{{PROBLEM}}`

// ExtractionPrompt builds the user message for fix extraction.
func ExtractionPrompt(text string) string {
	return strings.Replace(extractionTemplate, "{{TEXT}}", text, 1)
}

// SummaryPrompt builds the user message for a problem summary.
func SummaryPrompt(problem string) string {
	return strings.Replace(summaryTemplate, "{{PROBLEM}}", strings.TrimSpace(problem), 1)
}
