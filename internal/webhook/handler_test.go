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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Nxtvanhalen/byte-email/internal/attachments"
	"github.com/Nxtvanhalen/byte-email/internal/llm"
	"github.com/Nxtvanhalen/byte-email/internal/models"
	"github.com/Nxtvanhalen/byte-email/internal/store"
)

// --- test doubles ---

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(payload []byte, headers http.Header) error { return v.err }

type mockMailer struct {
	sent      []models.OutboundEmail
	sendErr   error
	body      string
	fetchErr  error
	fetchedID string
}

func (m *mockMailer) Send(ctx context.Context, email models.OutboundEmail) error {
	m.sent = append(m.sent, email)
	return m.sendErr
}

func (m *mockMailer) FetchBody(ctx context.Context, emailID string) (string, error) {
	m.fetchedID = emailID
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	return m.body, nil
}

type mockStore struct {
	claimed     bool
	limit       store.RateLimitResult
	history     []models.ConversationMessage
	savedThread string
	saved       []models.ConversationMessage
}

func (m *mockStore) ClaimMessage(ctx context.Context, messageID string) bool { return m.claimed }

func (m *mockStore) CheckRateLimit(ctx context.Context, sender string) store.RateLimitResult {
	return m.limit
}

func (m *mockStore) LoadConversation(ctx context.Context, threadKey string) []models.ConversationMessage {
	return m.history
}

func (m *mockStore) SaveConversation(ctx context.Context, threadKey string, history []models.ConversationMessage) {
	m.savedThread = threadKey
	m.saved = history
}

type mockProcessor struct {
	results []attachments.Processed
	err     error
	gotIDs  []string
}

func (m *mockProcessor) Process(ctx context.Context, emailID string, descriptors []models.AttachmentDescriptor) ([]attachments.Processed, error) {
	for _, d := range descriptors {
		m.gotIDs = append(m.gotIDs, d.ID)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockGenerator struct {
	response string
	err      error
	gotReq   llm.Request
	gotDec   llm.RoutingDecision
	calls    int
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request, decision llm.RoutingDecision) (string, error) {
	m.calls++
	m.gotReq = req
	m.gotDec = decision
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

type fixture struct {
	handler   *Handler
	mailer    *mockMailer
	store     *mockStore
	processor *mockProcessor
	generator *mockGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mailer:    &mockMailer{body: "hello there"},
		store:     &mockStore{claimed: true, limit: store.RateLimitResult{Allowed: true}},
		processor: &mockProcessor{},
		generator: &mockGenerator{response: "Sure thing.\n\n— Byte"},
	}
	f.handler = NewHandler(
		stubVerifier{},
		f.mailer,
		f.store,
		f.processor,
		f.generator,
		Config{
			AssistantAddress:  "byte@",
			MaxBodyChars:      50000,
			MaxAttachments:    5,
			DeepSeekAvailable: true,
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func deliver(t *testing.T, h *Handler, event models.InboundEmailEvent) (*httptest.ResponseRecorder, ackResponse) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/email/webhook", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	h.ServeWebhook(rec, req)

	var ack ackResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
			t.Fatalf("unmarshal ack: %v", err)
		}
	}
	return rec, ack
}

func inboundEvent() models.InboundEmailEvent {
	return models.InboundEmailEvent{
		Type: models.EventEmailReceived,
		Data: models.InboundEmailData{
			EmailID: "em_42",
			From:    "alice@example.com",
			To:      models.RecipientList{"byte@chrisleebergstrom.com"},
			Subject: "Re: Hello",
		},
	}
}

// --- gate checks ---

func TestBadSignatureRejected(t *testing.T) {
	f := newFixture(t)
	f.handler.verifier = stubVerifier{err: errors.New("bad signature")}

	rec, _ := deliver(t, f.handler, inboundEvent())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.mailer.sent) != 0 || f.generator.calls != 0 {
		t.Error("side effects after rejected signature")
	}
}

func TestIgnoresOtherEventTypes(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	event.Type = "email.bounced"

	rec, ack := deliver(t, f.handler, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !ack.Received || ack.Processed {
		t.Errorf("ack = %+v, want received and not processed", ack)
	}
	if f.generator.calls != 0 {
		t.Error("generator invoked for ignored event")
	}
}

func TestNotForAssistant(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	event.Data.To = models.RecipientList{"chris@chrisleebergstrom.com"}

	_, ack := deliver(t, f.handler, event)
	if ack.Processed || ack.Reason != reasonNotForAssistant {
		t.Errorf("ack = %+v", ack)
	}
	if len(f.mailer.sent) != 0 {
		t.Error("emails sent for a message not addressed to the assistant")
	}
}

func TestDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	f.store.claimed = false

	_, ack := deliver(t, f.handler, inboundEvent())
	if ack.Processed || ack.Reason != reasonDuplicate {
		t.Errorf("ack = %+v", ack)
	}
	if len(f.mailer.sent) != 0 || f.generator.calls != 0 {
		t.Error("duplicate still produced a reply")
	}
}

func TestRateLimitedSendsNotice(t *testing.T) {
	f := newFixture(t)
	f.store.limit = store.RateLimitResult{
		Allowed: false,
		Limit:   store.LimitHourly,
		Reason:  "hourly limit (15)",
	}

	_, ack := deliver(t, f.handler, inboundEvent())
	if ack.Processed || ack.Reason != reasonRateLimited {
		t.Errorf("ack = %+v", ack)
	}
	if f.generator.calls != 0 {
		t.Error("generator invoked for rate-limited sender")
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d emails, want 1 notice", len(f.mailer.sent))
	}
	notice := f.mailer.sent[0]
	if notice.To != "alice@example.com" || !strings.Contains(notice.Text, "hourly limit (15)") {
		t.Errorf("notice = %+v", notice)
	}
}

// --- happy path ---

func TestReplyFlow(t *testing.T) {
	f := newFixture(t)

	rec, ack := deliver(t, f.handler, inboundEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !ack.Received || !ack.Processed || !ack.Replied {
		t.Errorf("ack = %+v", ack)
	}

	if f.mailer.fetchedID != "em_42" {
		t.Errorf("fetched id = %q", f.mailer.fetchedID)
	}
	if f.generator.calls != 1 {
		t.Fatalf("generator calls = %d", f.generator.calls)
	}
	// Text-only email with DeepSeek available routes to the cheap chat model.
	if f.generator.gotDec.Model != llm.ModelDeepSeekChat {
		t.Errorf("model = %q", f.generator.gotDec.Model)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d emails", len(f.mailer.sent))
	}
	reply := f.mailer.sent[0]
	if reply.To != "alice@example.com" || reply.Subject != "Re: Hello" {
		t.Errorf("reply envelope = %+v", reply)
	}
	if !strings.Contains(reply.Text, "Sure thing.") || !strings.Contains(reply.Text, "you wrote:") {
		t.Errorf("reply text = %q", reply.Text)
	}
	if !strings.Contains(reply.HTML, "<!DOCTYPE html>") {
		t.Error("reply HTML missing document shell")
	}

	// Two new turns persisted: the user message and the reply.
	if len(f.store.saved) != 2 {
		t.Fatalf("saved %d messages, want 2", len(f.store.saved))
	}
	if f.store.saved[0].Role != models.RoleUser || f.store.saved[1].Role != models.RoleAssistant {
		t.Errorf("saved roles = %s, %s", f.store.saved[0].Role, f.store.saved[1].Role)
	}
	if f.store.savedThread != store.ThreadKey("Re: Hello", "alice@example.com") {
		t.Errorf("thread = %q", f.store.savedThread)
	}
}

func TestThinkingFlow(t *testing.T) {
	f := newFixture(t)
	f.mailer.body = "THINK what is 2+2?"

	_, ack := deliver(t, f.handler, inboundEvent())
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}

	// Routed to the reasoning model.
	if f.generator.gotDec.Model != llm.ModelDeepSeekReasoner {
		t.Errorf("model = %q, want reasoner", f.generator.gotDec.Model)
	}
	if !f.generator.gotReq.UseThinking {
		t.Error("thinking flag not set on request")
	}

	// Immediate acknowledgment plus the real reply.
	if len(f.mailer.sent) != 2 {
		t.Fatalf("sent = %d emails, want ack + reply", len(f.mailer.sent))
	}
	ackEmail := f.mailer.sent[0]
	if !strings.Contains(ackEmail.Text, "Deep thinking in progress") {
		t.Errorf("first email is not the thinking ack: %q", ackEmail.Text)
	}

	// Stored user turn has the trigger stripped.
	if len(f.store.saved) != 2 {
		t.Fatalf("saved %d messages", len(f.store.saved))
	}
	userTurn := f.store.saved[0]
	if strings.Contains(userTurn.Content, "THINK") {
		t.Errorf("trigger left in stored content: %q", userTurn.Content)
	}
	if userTurn.Content != "what is 2+2?" {
		t.Errorf("stored content = %q", userTurn.Content)
	}
	if requested, _ := userTurn.Metadata["thinkingRequested"].(bool); !requested {
		t.Error("thinkingRequested metadata not set")
	}
}

func TestVisionAttachmentRoutesToClaude(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	event.Data.Attachments = []models.AttachmentDescriptor{
		{ID: "att_1", Filename: "photo.jpg", ContentType: "image/jpeg"},
	}
	f.processor.results = []attachments.Processed{
		{Filename: "photo.jpg", Kind: attachments.KindImage, Base64: "aGk=", MediaType: "image/jpeg"},
	}

	_, ack := deliver(t, f.handler, event)
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}
	if f.generator.gotDec.Provider != llm.ProviderClaude {
		t.Errorf("provider = %q, want vision provider", f.generator.gotDec.Provider)
	}
	if len(f.generator.gotReq.Images) != 1 {
		t.Errorf("images on request = %d", len(f.generator.gotReq.Images))
	}
}

func TestOversizedBodyTruncated(t *testing.T) {
	f := newFixture(t)
	f.mailer.body = strings.Repeat("a", 60000)

	_, ack := deliver(t, f.handler, inboundEvent())
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}
	content := f.store.saved[0].Content
	if len(content) >= 60000 {
		t.Errorf("body not truncated: %d chars", len(content))
	}
	if !strings.HasSuffix(content, truncationMarker) {
		t.Error("truncation marker missing")
	}
}

// TestTruncationRespectsRuneBoundary puts a multibyte character astride the
// cap: the cut must back up to the previous rune boundary, never split it.
func TestTruncationRespectsRuneBoundary(t *testing.T) {
	f := newFixture(t)
	f.mailer.body = strings.Repeat("a", 49999) + "€ and some more text"

	_, ack := deliver(t, f.handler, inboundEvent())
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}

	content := f.store.saved[0].Content
	if !utf8.ValidString(content) {
		t.Fatalf("stored content is not valid UTF-8: ends %q", content[len(content)-8:])
	}
	if !strings.HasSuffix(content, truncationMarker) {
		t.Fatal("truncation marker missing")
	}
	body := strings.TrimSuffix(content, truncationMarker)
	if len(body) != 49999 {
		t.Errorf("body cut at %d bytes, want 49999 (rune boundary before the cap)", len(body))
	}
}

func TestHistoryPassedToGenerator(t *testing.T) {
	f := newFixture(t)
	f.store.history = []models.ConversationMessage{
		{Role: models.RoleUser, Content: "earlier question", Channel: models.ChannelEmail},
		{Role: models.RoleAssistant, Content: "earlier answer", Channel: models.ChannelEmail},
	}

	deliver(t, f.handler, inboundEvent())
	if len(f.generator.gotReq.Messages) != 3 {
		t.Fatalf("generator saw %d messages, want history + new turn", len(f.generator.gotReq.Messages))
	}
	if f.generator.gotReq.Messages[2].Content != "hello there" {
		t.Errorf("last message = %q", f.generator.gotReq.Messages[2].Content)
	}
	if len(f.store.saved) != 4 {
		t.Errorf("saved %d messages, want 4", len(f.store.saved))
	}
}

// --- degradation and failures ---

func TestAttachmentFailureBecomesWarning(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	event.Data.Attachments = []models.AttachmentDescriptor{
		{ID: "att_1", Filename: "broken.pdf", ContentType: "application/pdf"},
	}
	f.processor.results = []attachments.Processed{
		{Filename: "broken.pdf", Kind: attachments.KindPDF, Err: "fetch failed"},
	}

	_, ack := deliver(t, f.handler, event)
	if !ack.Replied {
		t.Fatalf("attachment failure aborted the reply: %+v", ack)
	}
	reply := f.mailer.sent[0]
	if !strings.Contains(reply.Text, "couldn't process some attachments: broken.pdf") {
		t.Errorf("warning missing from reply:\n%s", reply.Text)
	}
	// Warning lands before the sign-off, not after it.
	if idx := strings.Index(reply.Text, "couldn't process"); idx > strings.Index(reply.Text, "— Byte") {
		t.Error("warning spliced after the sign-off")
	}
}

func TestTotalAttachmentFailureContinuesTextOnly(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	event.Data.Attachments = []models.AttachmentDescriptor{
		{ID: "att_1", Filename: "a.pdf", ContentType: "application/pdf"},
	}
	f.processor.err = errors.New("processor exploded")

	_, ack := deliver(t, f.handler, event)
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}
	if len(f.generator.gotReq.Images) != 0 || len(f.generator.gotReq.PDFs) != 0 {
		t.Error("binary payloads present after total failure")
	}
	if !strings.Contains(f.mailer.sent[0].Text, "couldn't process your attachments") {
		t.Error("total-failure warning missing")
	}
}

func TestAttachmentCapReported(t *testing.T) {
	f := newFixture(t)
	event := inboundEvent()
	for i := 0; i < 7; i++ {
		event.Data.Attachments = append(event.Data.Attachments, models.AttachmentDescriptor{
			ID:          fmt.Sprintf("att_%d", i),
			Filename:    fmt.Sprintf("file%d.csv", i),
			ContentType: "text/csv",
		})
	}

	deliver(t, f.handler, event)
	if len(f.processor.gotIDs) != 5 {
		t.Errorf("processed %d attachments, want cap of 5", len(f.processor.gotIDs))
	}
	if !strings.Contains(f.mailer.sent[0].Text, "file5.csv, file6.csv") {
		t.Errorf("skipped files not reported:\n%s", f.mailer.sent[0].Text)
	}
}

func TestFetchBodyFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.fetchErr = errors.New("provider 500")

	rec, _ := deliver(t, f.handler, inboundEvent())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d, want one error notice", len(f.mailer.sent))
	}
	if !strings.Contains(f.mailer.sent[0].Text, "Hit a Technical Snag") {
		t.Errorf("notice = %q", f.mailer.sent[0].Text)
	}
}

func TestGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("backend exhausted retries")

	rec, _ := deliver(t, f.handler, inboundEvent())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.mailer.sent) != 1 || !strings.Contains(f.mailer.sent[0].Text, "Hit a Technical Snag") {
		t.Error("api error notice missing")
	}
	if len(f.store.saved) != 0 {
		t.Error("history saved despite generation failure")
	}
}

func TestSendFailureNotifies(t *testing.T) {
	f := newFixture(t)
	f.mailer.sendErr = errors.New("smtp down")

	rec, _ := deliver(t, f.handler, inboundEvent())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	// Reply attempt plus best-effort send-failed notice; the notice failing
	// too must not panic or change the status.
	if len(f.mailer.sent) != 2 {
		t.Fatalf("send attempts = %d, want 2", len(f.mailer.sent))
	}
	if !strings.Contains(f.mailer.sent[1].Text, "Reply Got Stuck") {
		t.Errorf("second send is not the failure notice: %q", f.mailer.sent[1].Text)
	}
}

// disconnectingGenerator simulates the webhook client hanging up while
// generation is still in flight, then reports whether the pipeline context
// survived the disconnect.
type disconnectingGenerator struct {
	disconnect context.CancelFunc
	response   string
}

func (g *disconnectingGenerator) Generate(ctx context.Context, req llm.Request, decision llm.RoutingDecision) (string, error) {
	g.disconnect()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.response, nil
}

// TestClientDisconnectDoesNotAbortPipeline: the provider times out and
// retries well inside a slow generation. Its disconnect must not cancel a
// delivery that already took the claim, or the retry is dropped as a
// duplicate and the sender never gets a reply.
func TestClientDisconnectDoesNotAbortPipeline(t *testing.T) {
	f := newFixture(t)

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.handler.generator = &disconnectingGenerator{
		disconnect: cancel,
		response:   "Took a while, but here it is.\n\n— Byte",
	}

	payload, err := json.Marshal(inboundEvent())
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/email/webhook", strings.NewReader(string(payload))).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	f.handler.ServeWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d, want the reply despite the disconnect", len(f.mailer.sent))
	}
	if !strings.Contains(f.mailer.sent[0].Text, "Took a while") {
		t.Errorf("reply text = %q", f.mailer.sent[0].Text)
	}
	if len(f.store.saved) != 2 {
		t.Errorf("saved %d messages, want both turns persisted", len(f.store.saved))
	}
}

// TestStoreDegradation drives the pipeline with a store that has lost
// everything: claim granted, no history, save a no-op. Exactly one reply
// still goes out.
func TestStoreDegradation(t *testing.T) {
	f := newFixture(t)
	f.store.history = nil

	_, ack := deliver(t, f.handler, inboundEvent())
	if !ack.Replied {
		t.Fatalf("ack = %+v", ack)
	}
	if len(f.mailer.sent) != 1 {
		t.Errorf("sent = %d, want exactly one reply", len(f.mailer.sent))
	}
	if len(f.generator.gotReq.Messages) != 1 {
		t.Errorf("generator saw %d messages, want just the new turn", len(f.generator.gotReq.Messages))
	}
}
