// Package pdftext reads the embedded text layer of PDF documents.
package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\n"

// Extract returns the text of every page joined by PageSeparator and
// trimmed. Pages without a text layer contribute nothing. Malformed input
// is reported as ErrCodeDecodeFailed; the parser's panics are recovered.
func Extract(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errors.New(errors.ErrCodeDecodeFailed, "pdf: empty input")
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = errors.New(errors.ErrCodeDecodeFailed, fmt.Sprintf("pdf: malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecodeFailed, "pdf: open document")
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeDecodeFailed, fmt.Sprintf("pdf: read page %d", i))
		}
		if t := strings.TrimSpace(pageText); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.TrimSpace(strings.Join(pages, PageSeparator)), nil
}
