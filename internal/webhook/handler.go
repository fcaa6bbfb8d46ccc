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

// Package webhook is the top of the pipeline: it receives signed
// email.received deliveries from the provider, runs the
// verify → dedup → rate-limit → fetch → generate → reply sequence, and owns
// the failure policy for every stage. Stages degrade or abort individually;
// an authenticated email never silently drops — the sender either gets the
// reply or a styled failure notice.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Nxtvanhalen/byte-email/internal/attachments"
	"github.com/Nxtvanhalen/byte-email/internal/llm"
	"github.com/Nxtvanhalen/byte-email/internal/models"
	"github.com/Nxtvanhalen/byte-email/internal/store"
	"github.com/Nxtvanhalen/byte-email/internal/template"
)

// Mailer sends replies and fetches inbound content from the email provider.
type Mailer interface {
	Send(ctx context.Context, email models.OutboundEmail) error
	FetchBody(ctx context.Context, emailID string) (string, error)
}

// ConversationStore is the persistence surface the pipeline needs. All
// methods degrade internally on store failure; none of them returns a store
// error to this package.
type ConversationStore interface {
	ClaimMessage(ctx context.Context, messageID string) bool
	CheckRateLimit(ctx context.Context, sender string) store.RateLimitResult
	LoadConversation(ctx context.Context, threadKey string) []models.ConversationMessage
	SaveConversation(ctx context.Context, threadKey string, history []models.ConversationMessage)
}

// AttachmentProcessor turns attachment descriptors into processed payloads.
type AttachmentProcessor interface {
	Process(ctx context.Context, emailID string, descriptors []models.AttachmentDescriptor) ([]attachments.Processed, error)
}

// ResponseGenerator produces the assistant's reply text for a routed request.
type ResponseGenerator interface {
	Generate(ctx context.Context, req llm.Request, decision llm.RoutingDecision) (string, error)
}

// Config holds the handler's tunables.
type Config struct {
	// AssistantAddress is the inbound address the assistant answers for,
	// matched as a substring of the first recipient (so plus-addressing and
	// display-name forms still match).
	AssistantAddress string
	// MaxBodyChars caps the message text passed to the backend; longer
	// bodies are truncated with an inline marker.
	MaxBodyChars int
	// MaxAttachments caps how many attachments are processed per email;
	// the excess is reported in the reply, not silently dropped.
	MaxAttachments int
	// DeepSeekAvailable feeds the router; false forces every email to the
	// vision provider.
	DeepSeekAvailable bool
}

// Handler runs the webhook pipeline for one delivery per request.
type Handler struct {
	verifier  SignatureVerifier
	mailer    Mailer
	store     ConversationStore
	processor AttachmentProcessor
	generator ResponseGenerator
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler wires the pipeline.
func NewHandler(
	verifier SignatureVerifier,
	mailer Mailer,
	convs ConversationStore,
	processor AttachmentProcessor,
	generator ResponseGenerator,
	cfg Config,
	log *slog.Logger,
) *Handler {
	return &Handler{
		verifier:  verifier,
		mailer:    mailer,
		store:     convs,
		processor: processor,
		generator: generator,
		cfg:       cfg,
		logger:    log.With(slog.String("service", "webhook")),
		now:       time.Now,
	}
}

// ackResponse is the structured acknowledgment returned to the provider.
type ackResponse struct {
	Received   bool   `json:"received"`
	Processed  bool   `json:"processed"`
	Reason     string `json:"reason,omitempty"`
	Replied    bool   `json:"replied,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Acknowledgment reasons for received-but-not-processed deliveries.
const (
	reasonNotForAssistant = "not_for_assistant"
	reasonDuplicate       = "duplicate"
	reasonRateLimited     = "rate_limited"
)

const truncationMarker = "\n\n[... message truncated ...]"

var signOffPattern = regexp.MustCompile(`(?s)— Byte.*$`)

// ServeWebhook handles one signed delivery end to end.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	delivery := uuid.NewString()
	log := h.logger.With(slog.String("delivery", delivery))

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Authentication comes before parsing: an unsigned payload is never
	// interpreted. No side effects on rejection.
	if err := h.verifier.Verify(payload, r.Header); err != nil {
		log.Warn("webhook signature rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var event models.InboundEmailEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Warn("verified payload is not valid JSON", "error", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if event.Type != models.EventEmailReceived {
		log.Info("ignoring event", "type", event.Type)
		writeJSON(w, http.StatusOK, ackResponse{Received: true})
		return
	}

	data := event.Data
	cleanSubject := store.NormalizeSubject(data.Subject)
	log = log.With(
		slog.String("email_id", data.EmailID),
		slog.String("from", data.From),
	)

	recipient := ""
	if len(data.To) > 0 {
		recipient = strings.ToLower(data.To[0])
	}
	if !strings.Contains(recipient, h.cfg.AssistantAddress) {
		log.Info("email not addressed to assistant", "to", recipient)
		writeJSON(w, http.StatusOK, ackResponse{Received: true, Reason: reasonNotForAssistant})
		return
	}

	// Once authenticated, the delivery runs to completion. The provider
	// gives up and retries long before a slow thinking-mode generation
	// finishes; its disconnect must not cancel a claimed delivery mid-flight,
	// or the retry lands on the claim as a duplicate and nobody replies.
	ctx := context.WithoutCancel(r.Context())

	if !h.store.ClaimMessage(ctx, data.EmailID) {
		log.Info("duplicate delivery, already processed")
		writeJSON(w, http.StatusOK, ackResponse{Received: true, Reason: reasonDuplicate})
		return
	}

	if limited := h.store.CheckRateLimit(ctx, data.From); !limited.Allowed {
		log.Warn("sender rate limited", "limit", limited.Limit, "reason", limited.Reason)
		h.notifyFailure(ctx, log, data.From, cleanSubject, template.ErrorOptions{
			Kind: template.ErrRateLimit,
			RateLimit: &template.RateLimitInfo{
				Reason:    limited.Reason,
				LimitType: limited.Limit,
			},
		})
		writeJSON(w, http.StatusOK, ackResponse{Received: true, Reason: reasonRateLimited})
		return
	}

	if err := h.process(ctx, log, data, cleanSubject); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	duration := h.now().Sub(start)
	log.Info("replied", "duration_ms", duration.Milliseconds())
	writeJSON(w, http.StatusOK, ackResponse{
		Received:   true,
		Processed:  true,
		Replied:    true,
		DurationMS: duration.Milliseconds(),
	})
}

// process runs everything after the cheap gate checks: body fetch, trigger
// detection, attachments, memory, generation, and the reply send. Every
// terminal failure sends a best-effort notice before returning the error.
func (h *Handler) process(ctx context.Context, log *slog.Logger, data models.InboundEmailData, cleanSubject string) error {
	content, err := h.mailer.FetchBody(ctx, data.EmailID)
	if err != nil {
		log.Error("failed to fetch email content", "error", err)
		h.notifyFailure(ctx, log, data.From, cleanSubject, template.ErrorOptions{
			Kind:    template.ErrAPI,
			Details: "Could not retrieve email content",
		})
		return fmt.Errorf("failed to fetch email content")
	}

	trigger := llm.DetectThinkingTrigger(content)
	if trigger.Triggered {
		log.Info("thinking mode requested")
		h.sendThinkingAck(ctx, log, data.From, cleanSubject)
	}

	content = trigger.Cleaned
	if h.cfg.MaxBodyChars > 0 && len(content) > h.cfg.MaxBodyChars {
		log.Warn("body oversized, truncating", "chars", len(content), "cap", h.cfg.MaxBodyChars)
		// Back the cut up to a rune boundary so a multibyte character at the
		// cap never leaves invalid UTF-8 in the prompt or the saved turn.
		cut := h.cfg.MaxBodyChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + truncationMarker
	}

	attachmentContext, images, pdfs, warning := h.handleAttachments(ctx, log, data)

	threadKey := store.ThreadKey(data.Subject, data.From)
	history := h.store.LoadConversation(ctx, threadKey)

	history = append(history, models.ConversationMessage{
		Role:      models.RoleUser,
		Content:   content,
		Channel:   models.ChannelEmail,
		Timestamp: h.now().UnixMilli(),
		Metadata: map[string]any{
			"from":              data.From,
			"subject":           data.Subject,
			"emailId":           data.EmailID,
			"thinkingRequested": trigger.Triggered,
		},
	})

	decision := llm.Route(llm.RouteInput{
		ImageCount:        len(images),
		PDFCount:          len(pdfs),
		ThinkingRequested: trigger.Triggered,
		DeepSeekAvailable: h.cfg.DeepSeekAvailable,
	})
	log.Info("routed", "provider", decision.Provider, "model", decision.Model, "reason", decision.Reason)

	response, err := h.generator.Generate(ctx, llm.Request{
		Messages:          history,
		From:              data.From,
		Subject:           data.Subject,
		AttachmentContext: attachmentContext,
		Images:            images,
		PDFs:              pdfs,
		UseThinking:       trigger.Triggered,
	}, decision)
	if err != nil {
		log.Error("response generation failed", "error", err)
		h.notifyFailure(ctx, log, data.From, cleanSubject, template.ErrorOptions{
			Kind: template.ErrAPI,
		})
		return fmt.Errorf("response generation failed")
	}

	if warning != "" {
		response = spliceWarning(response, warning)
	}

	history = append(history, models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   response,
		Channel:   models.ChannelEmail,
		Timestamp: h.now().UnixMilli(),
	})
	h.store.SaveConversation(ctx, threadKey, history)

	reply := models.OutboundEmail{
		To:      data.From,
		Subject: "Re: " + cleanSubject,
		Text:    template.RenderReplyText(response, content, h.now()),
		HTML: template.RenderReplyHTML(template.ReplyOptions{
			Response:        response,
			OriginalMessage: content,
			OriginalFrom:    data.From,
			OriginalSubject: data.Subject,
			OriginalDate:    h.now(),
		}),
	}
	if err := h.mailer.Send(ctx, reply); err != nil {
		log.Error("failed to send reply", "error", err)
		h.notifyFailure(ctx, log, data.From, cleanSubject, template.ErrorOptions{
			Kind:     template.ErrSendFailed,
			Retrying: true,
		})
		return fmt.Errorf("failed to send reply")
	}

	return nil
}

// handleAttachments runs the triage path: signature filtering, count capping,
// fetching and decoding. Nothing here is fatal — any failure collapses to a
// warning string spliced into the eventual reply.
func (h *Handler) handleAttachments(ctx context.Context, log *slog.Logger, data models.InboundEmailData) (attachmentContext string, images, pdfs []llm.Media, warning string) {
	descriptors := attachments.FilterSignatureImages(data.Attachments)
	if len(descriptors) == 0 {
		return "", nil, nil, ""
	}

	if h.cfg.MaxAttachments > 0 && len(descriptors) > h.cfg.MaxAttachments {
		excess := descriptors[h.cfg.MaxAttachments:]
		descriptors = descriptors[:h.cfg.MaxAttachments]
		names := make([]string, len(excess))
		for i, d := range excess {
			names[i] = d.Filename
		}
		warning = fmt.Sprintf("\n\n[Note: I only looked at the first %d attachments; I skipped: %s.]",
			h.cfg.MaxAttachments, strings.Join(names, ", "))
		log.Warn("attachment count over cap", "cap", h.cfg.MaxAttachments, "skipped", len(excess))
	}

	processed, err := h.processor.Process(ctx, data.EmailID, descriptors)
	if err != nil {
		log.Error("attachment processing failed entirely", "error", err)
		return "", nil, nil, warning + "\n\n[Note: I couldn't process your attachments, but I'll respond to your message.]"
	}

	attachmentContext = attachments.FormatForPrompt(processed)
	images = toMedia(attachments.Images(processed))
	pdfs = toMedia(attachments.PDFs(processed))

	if failed := attachments.Failed(processed); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Filename
		}
		warning += fmt.Sprintf("\n\n[Note: I couldn't process some attachments: %s. The rest of your message is fine.]",
			strings.Join(names, ", "))
		log.Warn("some attachments failed", "failed", names)
	}

	return attachmentContext, images, pdfs, warning
}

func toMedia(processed []attachments.Processed) []llm.Media {
	if len(processed) == 0 {
		return nil
	}
	media := make([]llm.Media, len(processed))
	for i, p := range processed {
		media[i] = llm.Media{
			Filename:  p.Filename,
			MediaType: p.MediaType,
			Base64:    p.Base64,
		}
	}
	return media
}

// spliceWarning inserts the attachment warning before the assistant's
// sign-off so the note reads as part of the reply rather than an appendix.
func spliceWarning(response, warning string) string {
	if signOffPattern.MatchString(response) {
		return signOffPattern.ReplaceAllString(response, strings.TrimPrefix(warning, "\n\n")+"\n\n— Byte")
	}
	return response + warning
}

// notifyFailure sends a styled failure notice. Best effort: a notification
// failure is logged, never propagated.
func (h *Handler) notifyFailure(ctx context.Context, log *slog.Logger, to, cleanSubject string, opts template.ErrorOptions) {
	if to == "" {
		return
	}
	err := h.mailer.Send(ctx, models.OutboundEmail{
		To:      to,
		Subject: "Re: " + cleanSubject,
		Text:    template.RenderErrorText(opts),
		HTML:    template.RenderErrorHTML(opts),
	})
	if err != nil {
		log.Error("failed to send error notification", "kind", string(opts.Kind), "error", err)
	}
}

// sendThinkingAck tells the sender a slow, deliberate answer is coming.
// Best effort: the real reply matters, the ack does not.
func (h *Handler) sendThinkingAck(ctx context.Context, log *slog.Logger, to, cleanSubject string) {
	err := h.mailer.Send(ctx, models.OutboundEmail{
		To:      to,
		Subject: cleanSubject,
		Text:    template.RenderThinkingAckText(cleanSubject),
		HTML:    template.RenderThinkingAckHTML(cleanSubject),
	})
	if err != nil {
		log.Warn("failed to send thinking acknowledgment", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
