package intake

import (
	"context"
	"encoding/base64"
	"mime"
	"strings"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/internal/intelligence/llm"
	"github.com/turtacn/RAG-HealthBot/internal/intelligence/pdftext"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const mimePDF = "application/pdf"

// ChatCompleter is the subset of llm.Client the stages need.
type ChatCompleter interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// OCRInput is one uploaded document.
type OCRInput struct {
	FileName      string
	Base64Content string
	MimeType      string
}

// OCROutput carries the extracted text.
type OCROutput struct {
	ExtractedText string
}

// OCRExecutor extracts text from an upload.
type OCRExecutor interface {
	Execute(ctx context.Context, in OCRInput) StageResult[OCROutput]
}

// Summarizer produces a concise summary of extracted text.
type Summarizer interface {
	Execute(ctx context.Context, text string) StageResult[string]
}

// EntityExtractor lists the medications mentioned in extracted text.
type EntityExtractor interface {
	Execute(ctx context.Context, text string) StageResult[[]medication.Mention]
}

// OCRStage reads the text layer of PDFs locally and sends images to a
// vision model.
type OCRStage struct {
	llm         ChatCompleter
	visionModel string
	extractPDF  func([]byte) (string, error)
	logger      logging.Logger
}

func NewOCRStage(c ChatCompleter, visionModel string, logger logging.Logger) *OCRStage {
	return &OCRStage{llm: c, visionModel: visionModel, extractPDF: pdftext.Extract, logger: logger}
}

// baseMime lowercases m and drops parameters ("image/PNG; q=1" → "image/png").
func baseMime(m string) string {
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func (s *OCRStage) Execute(ctx context.Context, in OCRInput) StageResult[OCROutput] {
	mt := baseMime(in.MimeType)
	switch {
	case mt == mimePDF:
		return s.pdf(in)
	case strings.HasPrefix(mt, "image/"):
		return s.image(ctx, in, mt)
	default:
		return failed[OCROutput](ReasonInvalidInput,
			errors.Newf(errors.ErrCodeUnsupportedMime, "unsupported mime type %q", in.MimeType))
	}
}

func (s *OCRStage) pdf(in OCRInput) StageResult[OCROutput] {
	data := report.DecodeContent(in.Base64Content)
	if data == nil {
		return failed[OCROutput](ReasonProcessingError, errors.New(errors.ErrCodeDecodeFailed, "could not decode pdf content"))
	}
	text, err := s.extractPDF(data)
	if err != nil {
		return failed[OCROutput](ReasonProcessingError, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return failed[OCROutput](ReasonProcessingError, errors.New(errors.ErrCodeNoExtractedText, "pdf has no text layer"))
	}
	s.logger.Debug("pdf text extracted", logging.String("file_name", in.FileName), logging.Int("chars", len(text)))
	return completed(OCROutput{ExtractedText: text})
}

func (s *OCRStage) image(ctx context.Context, in OCRInput, mt string) StageResult[OCROutput] {
	data := report.DecodeContent(in.Base64Content)
	if data == nil {
		return failed[OCROutput](ReasonProcessingError, errors.New(errors.ErrCodeDecodeFailed, "could not decode image content"))
	}
	dataURL := "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)

	out, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Operation: "ocr",
		Model:     s.visionModel,
		Messages:  llm.OCRMessages(dataURL),
	})
	if err != nil {
		return failed[OCROutput](ReasonProcessingError, err)
	}
	text := strings.TrimSpace(out)
	if text == "" {
		return failed[OCROutput](ReasonProcessingError, errors.New(errors.ErrCodeNoExtractedText, "vision model returned no text"))
	}
	return completed(OCROutput{ExtractedText: text})
}

// SummarizeStage asks the text model for a summary.
type SummarizeStage struct {
	llm         ChatCompleter
	temperature float64
}

func NewSummarizeStage(c ChatCompleter, temperature float64) *SummarizeStage {
	return &SummarizeStage{llm: c, temperature: temperature}
}

func (s *SummarizeStage) Execute(ctx context.Context, text string) StageResult[string] {
	temp := s.temperature
	out, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Operation:   "summarize",
		Messages:    llm.SummaryMessages(text),
		Temperature: &temp,
	})
	if err != nil {
		return failed[string](ReasonProcessingError, err)
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		return failed[string](ReasonProcessingError, errors.New(errors.ErrCodeLLMResponseParse, "empty summary"))
	}
	return completed(summary)
}

// ExtractStage asks the text model for structured medication JSON.
type ExtractStage struct {
	llm ChatCompleter
}

func NewExtractStage(c ChatCompleter) *ExtractStage {
	return &ExtractStage{llm: c}
}

func (s *ExtractStage) Execute(ctx context.Context, text string) StageResult[[]medication.Mention] {
	msgs, err := llm.ExtractionMessages(text)
	if err != nil {
		return failed[[]medication.Mention](ReasonProcessingError, err)
	}
	out, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Operation: "extract",
		Messages:  msgs,
		JSON:      true,
	})
	if err != nil {
		return failed[[]medication.Mention](ReasonProcessingError, err)
	}
	parsed, err := llm.ParseExtraction(out)
	if err != nil {
		return failed[[]medication.Mention](ReasonProcessingError, err)
	}

	mentions := make([]medication.Mention, 0, len(parsed.Medications))
	for _, m := range parsed.Medications {
		name := strings.TrimSpace(m.Text)
		if name == "" {
			continue
		}
		mentions = append(mentions, medication.Mention{
			Name:      name,
			Dosage:    cleanField(m.Dosage),
			Frequency: cleanField(m.Frequency),
			StartDate: cleanField(m.StartDate),
			EndDate:   cleanField(m.EndDate),
			Purpose:   cleanField(m.Purpose),
		})
	}
	return completed(mentions)
}

// cleanField maps blank strings and a literal "null" to nil.
func cleanField(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
