package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/planward/planward/internal/plan"
)

func anthropicStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ReturnsText(t *testing.T) {
	var gotReq messagesRequest
	srv := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":true}"}],"stop_reason":"end_turn"}`))
	})

	c := NewClientWithBaseURL("test-key", "", srv.URL)
	got, err := c.Complete(context.Background(), PurposeAnalysis, "analyze this")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("Complete() = %q", got)
	}
	if gotReq.MaxTokens != 8000 {
		t.Errorf("max_tokens = %d, want 8000", gotReq.MaxTokens)
	}
	if gotReq.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", gotReq.Temperature)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestComplete_PurposeParameters(t *testing.T) {
	cases := []struct {
		purpose     Purpose
		maxTokens   int
		temperature float64
	}{
		{PurposeAnalysis, 8000, 0.3},
		{PurposeStrategy, 8000, 0.2},
		{PurposeSquare, 4000, 0.3},
		{PurposeValidate, 2000, 0.3},
	}
	for _, c := range cases {
		var gotReq messagesRequest
		srv := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotReq)
			w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
		})
		client := NewClientWithBaseURL("k", "", srv.URL)
		if _, err := client.Complete(context.Background(), c.purpose, "p"); err != nil {
			t.Fatalf("%s: Complete() error: %v", c.purpose, err)
		}
		if gotReq.MaxTokens != c.maxTokens || gotReq.Temperature != c.temperature {
			t.Errorf("%s: got {%d, %v}, want {%d, %v}",
				c.purpose, gotReq.MaxTokens, gotReq.Temperature, c.maxTokens, c.temperature)
		}
	}
}

func TestComplete_ConcatenatesTextBlocks(t *testing.T) {
	srv := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	})
	c := NewClientWithBaseURL("k", "", srv.URL)
	got, err := c.Complete(context.Background(), PurposeValidate, "p")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "part one part two" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestComplete_NonTextContent(t *testing.T) {
	srv := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"tool_use","text":""}]}`))
	})
	c := NewClientWithBaseURL("k", "", srv.URL)
	_, err := c.Complete(context.Background(), PurposeAnalysis, "p")
	var ue *plan.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestComplete_AuthFailure(t *testing.T) {
	srv := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})
	c := NewClientWithBaseURL("bad", "", srv.URL)
	_, err := c.Complete(context.Background(), PurposeStrategy, "p")
	var ue *plan.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if plan.IsParseClass(err) {
		t.Error("auth failure classified as parse-class; must not be retried")
	}
}

func TestComplete_UnknownPurpose(t *testing.T) {
	c := NewClient("k", "")
	_, err := c.Complete(context.Background(), Purpose("bogus"), "p")
	var ue *plan.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient("k", "")
	if c.Model() != defaultModel {
		t.Errorf("Model() = %q, want %q", c.Model(), defaultModel)
	}
	c = NewClient("k", "claude-3-5-sonnet-20241022")
	if c.Model() != "claude-3-5-sonnet-20241022" {
		t.Errorf("Model() = %q", c.Model())
	}
}
