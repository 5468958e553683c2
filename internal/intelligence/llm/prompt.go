package llm

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const (
	ocrInstruction = "Transcribe all readable text in this medical document image. " +
		"Return only the text, preserving line breaks. Do not add commentary."

	summarySystem = "You are a summarizer agent that summarizes medical documents. " +
		"You receive a text and return a concise summary. Only return the summary " +
		"without any additional commentary or formatting."
	summaryInstruction = "Summarize the following medical document text concisely and only return the summary."

	extractionSystem = "You extract medication entities from medical documents and answer with JSON only."
)

var extractionTemplate = template.Must(template.New("extraction").Parse(
	`Extract every medication mentioned in the document below.
Respond with a JSON object of this exact shape:
{"medications":[{"text":"<drug name as written>","dosage":"<e.g. 500mg or null>","frequency":"<e.g. twice daily or null>","start_date":"<date or null>","end_date":"<date or null>","purpose":"<indication or null>"}]}
Use null for unknown fields. Return {"medications":[]} when there are none.

Document:
"""
{{.Text}}
"""`))

// OCRMessages asks a vision model to transcribe the image at imageURL.
func OCRMessages(imageURL string) []Message {
	return []Message{ImageMessage(ocrInstruction, imageURL)}
}

// SummaryMessages asks for a concise summary of text.
func SummaryMessages(text string) []Message {
	return []Message{
		TextMessage(RoleSystem, summarySystem),
		TextMessage(RoleUser, summaryInstruction, text),
	}
}

// ExtractionMessages asks for the medication JSON document described by
// ExtractionResult.
func ExtractionMessages(text string) ([]Message, error) {
	var buf bytes.Buffer
	if err := extractionTemplate.Execute(&buf, struct{ Text string }{text}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "render extraction prompt")
	}
	return []Message{
		TextMessage(RoleSystem, extractionSystem),
		TextMessage(RoleUser, buf.String()),
	}, nil
}

// ExtractedMedication mirrors one element of the extraction response.
type ExtractedMedication struct {
	Text      string  `json:"text"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Purpose   *string `json:"purpose"`
}

// ExtractionResult is the structured output of the extraction prompt.
type ExtractionResult struct {
	Medications []ExtractedMedication `json:"medications"`
}

// ParseExtraction decodes content, tolerating a surrounding markdown code
// fence. A missing "medications" key is a parse error; an empty list is not.
func ParseExtraction(content string) (ExtractionResult, error) {
	body := stripCodeFence(strings.TrimSpace(content))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return ExtractionResult{}, errors.Wrap(err, errors.ErrCodeLLMResponseParse, "extraction response is not a JSON object")
	}
	meds, ok := raw["medications"]
	if !ok {
		return ExtractionResult{}, errors.New(errors.ErrCodeLLMResponseParse, "extraction response has no medications key")
	}

	var out ExtractionResult
	if string(meds) != "null" {
		if err := json.Unmarshal(meds, &out.Medications); err != nil {
			return ExtractionResult{}, errors.Wrap(err, errors.ErrCodeLLMResponseParse, "decode medications")
		}
	}
	if out.Medications == nil {
		out.Medications = []ExtractedMedication{}
	}
	return out, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string ("json")
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
