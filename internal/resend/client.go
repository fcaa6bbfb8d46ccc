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

// Package resend talks to the email provider: outbound sends go through the
// official SDK, while inbound message bodies and attachment bytes are fetched
// from the receiving API by id (the SDK has no receiving surface, so those
// calls are plain HTTP).
package resend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	resendsdk "github.com/resend/resend-go/v2"

	"github.com/Nxtvanhalen/byte-email/internal/models"
	"github.com/Nxtvanhalen/byte-email/internal/retry"
)

const defaultBaseURL = "https://api.resend.com"

// Client wraps the Resend API for both directions of email.
type Client struct {
	sdk        *resendsdk.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	fromName   string
	fromAddr   string
	logger     *slog.Logger
}

// NewClient creates a provider client. fromName/fromAddr form the assistant's
// sending identity, e.g. "Byte AI <byte@example.com>".
func NewClient(apiKey, fromName, fromAddr string, log *slog.Logger) *Client {
	return &Client{
		sdk:        resendsdk.NewClient(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		fromName:   fromName,
		fromAddr:   fromAddr,
		logger:     log.With(slog.String("service", "resend")),
	}
}

var sendRetryOptions = retry.Options{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// Send delivers an outbound email through the SDK, retrying transient
// provider failures.
func (c *Client) Send(ctx context.Context, email models.OutboundEmail) error {
	params := &resendsdk.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromAddr),
		To:      []string{email.To},
		Subject: email.Subject,
		Text:    email.Text,
		Html:    email.HTML,
		ReplyTo: c.fromAddr,
	}

	sent, err := retry.Do(ctx, sendRetryOptions, func(ctx context.Context) (*resendsdk.SendEmailResponse, error) {
		return c.sdk.Emails.SendWithContext(ctx, params)
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", email.To, err)
	}

	c.logger.Info("email sent", "to", email.To, "id", sent.Id)
	return nil
}

// receivedEmail mirrors the receiving-API message body response.
type receivedEmail struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

var fetchRetryOptions = retry.Options{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// FetchBody retrieves the full plain-text body of an inbound email by id,
// falling back to stripped HTML when no text part exists.
func (c *Client) FetchBody(ctx context.Context, emailID string) (string, error) {
	url := fmt.Sprintf("%s/emails/receiving/%s", c.baseURL, emailID)

	email, err := retry.Do(ctx, fetchRetryOptions, func(ctx context.Context) (*receivedEmail, error) {
		var out receivedEmail
		if err := c.getJSON(ctx, url, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch email %s: %w", emailID, err)
	}

	if email.Text != "" {
		return email.Text, nil
	}
	if text := htmlToText(email.HTML); text != "" {
		return text, nil
	}
	return "No content", nil
}

// attachmentMetadata mirrors the receiving-API attachment response: either a
// signed download URL or inline base64 content.
type attachmentMetadata struct {
	DownloadURL string `json:"download_url"`
	Content     string `json:"content"`
}

// FetchAttachment retrieves raw attachment bytes by email and attachment id.
// No internal retry: the attachment processor owns the retry budget for
// downloads.
func (c *Client) FetchAttachment(ctx context.Context, emailID, attachmentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/emails/receiving/%s/attachments/%s", c.baseURL, emailID, attachmentID)

	var meta attachmentMetadata
	if err := c.getJSON(ctx, url, &meta); err != nil {
		return nil, fmt.Errorf("fetch attachment metadata %s/%s: %w", emailID, attachmentID, err)
	}

	if meta.DownloadURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build download request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download attachment: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return io.ReadAll(resp.Body)
	}

	if meta.Content != "" {
		data, err := base64.StdEncoding.DecodeString(meta.Content)
		if err != nil {
			return nil, fmt.Errorf("decode inline attachment content: %w", err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("attachment %s/%s has no download_url or content", emailID, attachmentID)
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// horizontalSpace collapses runs of spaces and tabs without touching the
// newlines that carry document structure.
var horizontalSpace = regexp.MustCompile(`[^\S\n]+`)

// htmlToText reduces an HTML body to readable plain text. Only runs when the
// provider gave us no text part at all. Block elements become line breaks so
// paragraphs and list items stay separated instead of fusing into one line.
func htmlToText(raw string) string {
	if raw == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	doc.Find("script, style, head, meta, link").Remove()

	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := horizontalSpace.ReplaceAllString(doc.Text(), " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
