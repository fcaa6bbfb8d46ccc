// Copyright (c) 2026 Chris Bergstrom
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package attachments downloads, classifies and decodes inbound email
// attachments. Images and PDFs become base64 payloads for vision routing;
// spreadsheets become CSV text blocks; everything else is reported as
// unsupported. Failures stay per-attachment and never abort the batch.
package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Nxtvanhalen/byte-email/internal/models"
	"github.com/Nxtvanhalen/byte-email/internal/retry"
)

// Kind classifies an attachment by its declared content type.
type Kind string

const (
	KindImage       Kind = "image"
	KindPDF         Kind = "pdf"
	KindSpreadsheet Kind = "spreadsheet"
	KindUnsupported Kind = "unsupported"
)

// Processed is the outcome for one attachment descriptor. Exactly one of
// Content (spreadsheet text), Base64 (binary payload) or Err is meaningful.
type Processed struct {
	Filename  string
	Kind      Kind
	Content   string
	Base64    string
	MediaType string
	Err       string
}

// Fetcher retrieves raw attachment bytes from the email provider.
type Fetcher interface {
	FetchAttachment(ctx context.Context, emailID, attachmentID string) ([]byte, error)
}

// Processor turns attachment descriptors into processed payloads.
type Processor struct {
	fetcher     Fetcher
	maxPDFBytes int64
	logger      *slog.Logger
}

// NewProcessor creates a processor. maxPDFBytes caps PDF payloads; the vision
// backend rejects oversized documents, so we fail early with a clear reason.
func NewProcessor(fetcher Fetcher, maxPDFBytes int64, log *slog.Logger) *Processor {
	return &Processor{
		fetcher:     fetcher,
		maxPDFBytes: maxPDFBytes,
		logger:      log.With(slog.String("service", "attachments")),
	}
}

var fetchRetryOptions = retry.Options{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Process handles each descriptor in order and returns one result per input.
// The caller has already capped the descriptor count. The returned error is
// only non-nil for whole-batch failures (context cancellation); individual
// download or decode failures land in the per-attachment Err field.
func (p *Processor) Process(ctx context.Context, emailID string, descriptors []models.AttachmentDescriptor) ([]Processed, error) {
	results := make([]Processed, 0, len(descriptors))

	for _, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("attachment batch aborted: %w", err)
		}

		kind := Classify(d.ContentType)
		p.logger.Info("processing attachment",
			"filename", d.Filename,
			"content_type", d.ContentType,
			"kind", string(kind),
		)

		if kind == KindUnsupported {
			// No fetch attempted for types we cannot use.
			results = append(results, Processed{
				Filename: d.Filename,
				Kind:     KindUnsupported,
				Err:      fmt.Sprintf("Unsupported file type: %s", d.ContentType),
			})
			continue
		}

		data, err := retry.Do(ctx, fetchRetryOptions, func(ctx context.Context) ([]byte, error) {
			return p.fetcher.FetchAttachment(ctx, emailID, d.ID)
		})
		if err != nil {
			p.logger.Warn("attachment download failed",
				"filename", d.Filename,
				"error", err,
			)
			results = append(results, Processed{
				Filename: d.Filename,
				Kind:     kind,
				Err:      "Failed to download attachment",
			})
			continue
		}

		results = append(results, p.decode(d, kind, data))
	}

	return results, nil
}

// decode converts fetched bytes into the processed form for one attachment.
func (p *Processor) decode(d models.AttachmentDescriptor, kind Kind, data []byte) Processed {
	switch kind {
	case KindImage:
		return Processed{
			Filename:  d.Filename,
			Kind:      KindImage,
			Base64:    base64.StdEncoding.EncodeToString(data),
			MediaType: normalizeImageMediaType(d.ContentType),
		}

	case KindPDF:
		if int64(len(data)) > p.maxPDFBytes {
			return Processed{
				Filename: d.Filename,
				Kind:     KindPDF,
				Err: fmt.Sprintf("PDF too large (%d bytes, limit %d) — the vision backend enforces a document size limit",
					len(data), p.maxPDFBytes),
			}
		}
		return Processed{
			Filename:  d.Filename,
			Kind:      KindPDF,
			Base64:    base64.StdEncoding.EncodeToString(data),
			MediaType: "application/pdf",
		}

	case KindSpreadsheet:
		text, err := extractSpreadsheetText(d.ContentType, data)
		if err != nil {
			return Processed{
				Filename: d.Filename,
				Kind:     KindSpreadsheet,
				Err:      fmt.Sprintf("Failed to process: %v", err),
			}
		}
		return Processed{
			Filename: d.Filename,
			Kind:     KindSpreadsheet,
			Content:  text,
		}
	}

	return Processed{Filename: d.Filename, Kind: KindUnsupported, Err: "Unsupported file type"}
}

// Classify maps a declared content type onto a kind.
func Classify(contentType string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/png"),
		strings.HasPrefix(ct, "image/jpeg"),
		strings.HasPrefix(ct, "image/jpg"),
		strings.HasPrefix(ct, "image/gif"),
		strings.HasPrefix(ct, "image/webp"):
		return KindImage
	case strings.Contains(ct, "pdf"):
		return KindPDF
	case strings.Contains(ct, "spreadsheet"),
		strings.Contains(ct, "ms-excel"),
		strings.Contains(ct, "csv"):
		return KindSpreadsheet
	}
	return KindUnsupported
}

// normalizeImageMediaType collapses declared image types onto the media types
// the vision backend accepts.
func normalizeImageMediaType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return "image/png"
	case strings.Contains(ct, "gif"):
		return "image/gif"
	case strings.Contains(ct, "webp"):
		return "image/webp"
	}
	return "image/jpeg"
}

// extractSpreadsheetText decodes spreadsheet bytes into labeled CSV blocks,
// one per sheet. Raw CSV passes through with a single label.
func extractSpreadsheetText(contentType string, data []byte) (string, error) {
	if strings.Contains(strings.ToLower(contentType), "csv") {
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "No data extracted from spreadsheet", nil
		}
		return text, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		fmt.Fprintf(&b, "\n--- Sheet: %s ---\n", sheet)
		w := csv.NewWriter(&b)
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("encode sheet %q: %w", sheet, err)
			}
		}
		w.Flush()
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "No data extracted from spreadsheet", nil
	}
	return text, nil
}

// FormatForPrompt renders spreadsheet text and per-attachment errors into the
// prompt-context block. Images and PDFs ride as binary content blocks, not
// text, so they are skipped here.
func FormatForPrompt(processed []Processed) string {
	var parts []string
	for _, a := range processed {
		switch {
		case a.Err != "":
			parts = append(parts, fmt.Sprintf("[Attachment: %s - %s]", a.Filename, a.Err))
		case a.Kind == KindSpreadsheet:
			parts = append(parts, fmt.Sprintf("\n--- Attachment: %s ---\n%s\n--- End of %s ---\n",
				a.Filename, a.Content, a.Filename))
		}
	}
	return strings.Join(parts, "\n")
}

// Images returns the successfully processed image payloads.
func Images(processed []Processed) []Processed {
	var out []Processed
	for _, a := range processed {
		if a.Kind == KindImage && a.Base64 != "" && a.Err == "" {
			out = append(out, a)
		}
	}
	return out
}

// PDFs returns the successfully processed PDF payloads.
func PDFs(processed []Processed) []Processed {
	var out []Processed
	for _, a := range processed {
		if a.Kind == KindPDF && a.Base64 != "" && a.Err == "" {
			out = append(out, a)
		}
	}
	return out
}

// Failed returns the attachments that ended in an error.
func Failed(processed []Processed) []Processed {
	var out []Processed
	for _, a := range processed {
		if a.Err != "" {
			out = append(out, a)
		}
	}
	return out
}
