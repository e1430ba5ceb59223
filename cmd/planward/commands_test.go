package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/planward/planward/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestPlanCreateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /plans": `{"id":"plan-123","status":"in_progress"}`,
	})

	client := ts.client()

	req := map[string]any{
		"questionnaireResponses": json.RawMessage(`{"q1":"coffee shop"}`),
		"businessContext":        json.RawMessage(`{"industry":"retail"}`),
	}
	resp, err := client.post("/plans", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != "plan-123" {
		t.Errorf("id = %q, want plan-123", result["id"])
	}
	if result["status"] != "in_progress" {
		t.Errorf("status = %q, want in_progress", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	responses, ok := body["questionnaireResponses"].(map[string]any)
	if !ok {
		t.Fatal("expected questionnaireResponses to be an object")
	}
	if responses["q1"] != "coffee shop" {
		t.Errorf("q1 = %v, want coffee shop", responses["q1"])
	}
}

func TestPlanCreateCommand_MissingResponses(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"plan", "create"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --responses")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestPlanGenerateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /plans/plan-1/generate": `{"success":true,"processingTime":4200,"plan":{"id":"plan-1","status":"completed"}}`,
	})

	client := ts.client()
	resp, err := client.post("/plans/plan-1/generate", map[string]string{"notifyEmail": "owner@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Success        bool  `json:"success"`
		ProcessingTime int64 `json:"processingTime"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.Success {
		t.Error("expected success=true")
	}
	if result.ProcessingTime != 4200 {
		t.Errorf("processingTime = %d, want 4200", result.ProcessingTime)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["notifyEmail"] != "owner@example.com" {
		t.Errorf("notifyEmail = %q, want owner@example.com", body["notifyEmail"])
	}
}

func TestPlanGenerate_NoBodyWithoutNotify(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /plans/plan-1/generate": `{"success":true,"processingTime":100,"plan":{"status":"completed"}}`,
	})

	client := ts.client()
	resp, err := client.post("/plans/plan-1/generate", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Body != "" {
		t.Errorf("expected empty body, got %q", ts.requests[0].Body)
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		disp string
		want string
	}{
		{`attachment; filename="marketing-plan-2026-03-14.pdf"`, "marketing-plan-2026-03-14.pdf"},
		{`attachment`, "fallback.pdf"},
		{``, "fallback.pdf"},
		{`attachment; filename=""`, "fallback.pdf"},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.disp != "" {
			resp.Header.Set("Content-Disposition", tt.disp)
		}
		got := filenameFromDisposition(resp, "fallback.pdf")
		if got != tt.want {
			t.Errorf("filenameFromDisposition(%q) = %q, want %q", tt.disp, got, tt.want)
		}
	}
}

func TestPlanEmailRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /plans/plan-1/email": `{"status":"sent"}`,
	})

	client := ts.client()
	req := map[string]string{
		"action":         "share",
		"recipientEmail": "colleague@acme.test",
		"senderEmail":    "jordan@acme.test",
	}
	resp, err := client.post("/plans/plan-1/email", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "sent" {
		t.Errorf("status = %q, want sent", result["status"])
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["action"] != "share" {
		t.Errorf("action = %q, want share", body["action"])
	}
	if body["senderEmail"] != "jordan@acme.test" {
		t.Errorf("senderEmail = %q, want jordan@acme.test", body["senderEmail"])
	}
}

func TestPlanEmailCommand_MissingRecipient(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"plan", "email", "plan-1"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --to")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestValidateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /validate-responses": `{"suggestions":["Add target market details"],"completionScore":55}`,
	})

	client := ts.client()
	resp, err := client.post("/validate-responses", map[string]any{
		"responses": json.RawMessage(`{"q1":"coffee"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Suggestions     []string `json:"suggestions"`
		CompletionScore int      `json:"completionScore"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.CompletionScore != 55 {
		t.Errorf("completionScore = %d, want 55", result.CompletionScore)
	}
	if len(result.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(result.Suggestions))
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get("/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get("/plans")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestReadJSONFile(t *testing.T) {
	dir := t.TempDir()

	good := dir + "/good.json"
	if err := os.WriteFile(good, []byte(`{"q1":"coffee"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, err := readJSONFile(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"q1":"coffee"}` {
		t.Errorf("raw = %q", string(raw))
	}

	bad := dir + "/bad.json"
	if err := os.WriteFile(bad, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readJSONFile(bad); err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	if _, err := readJSONFile(dir + "/missing.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Anthropic.Model = "claude-sonnet-4-20250514"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}
