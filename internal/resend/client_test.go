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

package resend

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("re_test_key", "Byte AI", "byte@example.com", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL
	return c
}

func TestFetchBodyPrefersText(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails/receiving/em_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test_key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"text":"plain body","html":"<p>html body</p>"}`)
	}))

	body, err := c.FetchBody(context.Background(), "em_123")
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if body != "plain body" {
		t.Errorf("body = %q, want plain text part", body)
	}
}

func TestFetchBodyHTMLFallback(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"","html":"<style>p{color:red}</style><p>Hello <strong>there</strong> &amp; welcome</p>"}`)
	}))

	body, err := c.FetchBody(context.Background(), "em_123")
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if body != "Hello there & welcome" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchBodyEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	body, err := c.FetchBody(context.Background(), "em_123")
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if body != "No content" {
		t.Errorf("body = %q, want placeholder", body)
	}
}

func TestFetchBodyRetriesServerError(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"text":"recovered"}`)
	}))

	body, err := c.FetchBody(context.Background(), "em_123")
	if err != nil {
		t.Fatalf("FetchBody after retries: %v", err)
	}
	if body != "recovered" {
		t.Errorf("body = %q", body)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFetchAttachmentDownloadURL(t *testing.T) {
	payload := []byte("%PDF-1.4 fake document")

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/emails/receiving/em_1/attachments/att_1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"download_url":%q}`, srv.URL+"/download/att_1")
	})
	mux.HandleFunc("/download/att_1", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})

	c := NewClient("re_test_key", "Byte AI", "byte@example.com", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL

	data, err := c.FetchAttachment(context.Background(), "em_1", "att_1")
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %q", data)
	}
}

func TestFetchAttachmentInlineContent(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"content":%q}`, base64.StdEncoding.EncodeToString(payload))
	}))

	data, err := c.FetchAttachment(context.Background(), "em_1", "att_2")
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %v", data)
	}
}

func TestFetchAttachmentNoSource(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	if _, err := c.FetchAttachment(context.Background(), "em_1", "att_3"); err == nil {
		t.Error("expected error for attachment with neither download_url nor content")
	}
}

// TestFetchAttachmentNoRetry pins the contract that attachment fetches fail
// fast; the caller owns the retry budget.
func TestFetchAttachmentNoRetry(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if _, err := c.FetchAttachment(context.Background(), "em_1", "att_4"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs keep line breaks", "<p>one</p><p>two</p>", "one\ntwo"},
		{"entities", "a &lt;b&gt; &quot;c&quot; &#39;d&#39;", `a <b> "c" 'd'`},
		{"script dropped", "<script>alert(1)</script>safe", "safe"},
		{"style dropped", "<style>p{color:red}</style><p>visible</p>", "visible"},
		{"horizontal whitespace collapsed", "<p>a\t  b</p>", "a b"},
		{"heading separated", "<h1>Title</h1><p>Intro</p>", "Title\nIntro"},
		{"br becomes line break", "line one<br>line two", "line one\nline two"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlToText(tt.in); got != tt.want {
				t.Errorf("htmlToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestHTMLToTextPreservesBlockStructure pins the shape an HTML-only email
// takes on its way to the backend: paragraphs and list items must arrive on
// separate lines, never as one run-on string.
func TestHTMLToTextPreservesBlockStructure(t *testing.T) {
	in := "<p>First paragraph.</p><p>Second paragraph.</p><ul><li>item one</li><li>item two</li></ul>"
	want := "First paragraph.\nSecond paragraph.\nitem one\nitem two"
	if got := htmlToText(in); got != want {
		t.Errorf("htmlToText = %q, want %q", got, want)
	}
}
