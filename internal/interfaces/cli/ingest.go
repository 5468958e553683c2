package cli

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/RAG-HealthBot/internal/application/intake"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// IngestResult wraps a pipeline result for text and table output. JSON
// output is the bare result.
type IngestResult struct {
	intake.RunResult
}

func (r IngestResult) MarshalJSON() ([]byte, error) {
	return jsonMarshal(r.RunResult)
}

func (r IngestResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "status:    %s\n", r.Status)
	if r.Status == intake.RunFailed {
		fmt.Fprintf(&sb, "reason:    %s\n", r.Reason)
		fmt.Fprintf(&sb, "error:     %s", r.Error)
		return sb.String()
	}
	fmt.Fprintf(&sb, "report_id: %d\n", r.ReportID)
	if r.Duplicate {
		sb.WriteString("duplicate: true\n")
	}
	fmt.Fprintf(&sb, "summary:   %s", r.Summary)
	for _, m := range r.Medications {
		fmt.Fprintf(&sb, "\n  - %s", m.Name)
		if m.Dosage != nil {
			fmt.Fprintf(&sb, " %s", *m.Dosage)
		}
		if m.Frequency != nil {
			fmt.Fprintf(&sb, " %s", *m.Frequency)
		}
	}
	return sb.String()
}

func (r IngestResult) TableHeaders() []string {
	return []string{"MEDICATION", "DOSAGE", "FREQUENCY", "PURPOSE"}
}

func (r IngestResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Medications))
	for _, m := range r.Medications {
		rows = append(rows, []string{m.Name, deref(m.Dosage), deref(m.Frequency), deref(m.Purpose)})
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewIngestCmd creates the ingest command.
func NewIngestCmd(deps Dependencies) *cobra.Command {
	var mimeType string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Run a document through the intake pipeline in-process",
		Long: "ingest reads a PDF or image, runs OCR, summarization and medication\n" +
			"extraction, persists the report and prints the result.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			req, err := buildRunRequest(args[0], mimeType)
			if err != nil {
				return err
			}

			ctx, cancel := operationContext(cmd, cc)
			defer cancel()
			runner, release, err := deps.OpenPipeline(ctx, cc.Config, cc.Logger)
			if err != nil {
				return err
			}
			defer release()

			cc.Logger.Info("ingesting document",
				logging.String("file", req.FileName),
				logging.String("mime_type", req.MimeType),
				logging.String("run_id", req.RunID))

			res := runner.Run(ctx, req)
			if err := PrintResult(cmd, IngestResult{res}); err != nil {
				return err
			}
			if res.Status == intake.RunFailed {
				return errors.Newf(errors.ErrCodeStageFailed, "ingest failed: %s", res.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (detected from the file when empty)")
	return cmd
}

func buildRunRequest(path, mimeType string) (intake.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intake.RunRequest{}, errors.Wrap(err, errors.ErrCodeValidation, "read input file")
	}
	if len(data) == 0 {
		return intake.RunRequest{}, errors.Newf(errors.ErrCodeValidation, "%s is empty", path)
	}
	if mimeType == "" {
		mimeType = detectMime(path, data)
	}
	return intake.RunRequest{
		FileName:      filepath.Base(path),
		MimeType:      mimeType,
		Base64Content: base64.StdEncoding.EncodeToString(data),
		RunID:         uuid.NewString(),
	}, nil
}

// detectMime prefers the extension and falls back to content sniffing.
func detectMime(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
