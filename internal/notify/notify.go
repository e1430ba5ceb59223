// Package notify sends plan emails through the Resend HTTP API.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/render"
)

const defaultBaseURL = "https://api.resend.com"

// Client posts emails to the Resend API. A client with an empty API key is
// valid but refuses to send, so notification stays optional at runtime.
type Client struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, from string) *Client {
	return NewClientWithBaseURL(apiKey, from, defaultBaseURL)
}

// NewClientWithBaseURL exists for tests.
func NewClientWithBaseURL(apiKey, from, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		from:       from,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type sendRequest struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// SendCompletion tells the recipient their plan is ready.
func (c *Client) SendCompletion(ctx context.Context, recipient string, p plan.Plan) error {
	body := fmt.Sprintf(`<h2>Your marketing plan is ready</h2>
<p>The marketing plan you requested has finished generating. Sign in to review
it and download the PDF.</p>
<p>Plan ID: <code>%s</code></p>`, p.ID)
	return c.send(ctx, sendRequest{
		From:    c.from,
		To:      []string{recipient},
		Subject: "Your marketing plan is ready",
		HTML:    body,
	})
}

// SendShare forwards a completed plan, with its PDF attached, on behalf of
// the sender.
func (c *Client) SendShare(ctx context.Context, recipient, senderName, message string, p plan.Plan, doc render.Document) error {
	body := fmt.Sprintf(`<h2>%s shared a marketing plan with you</h2>
<p>The complete plan is attached as a PDF.</p>`, html.EscapeString(senderName))
	if message != "" {
		body += fmt.Sprintf("\n<blockquote>%s</blockquote>", html.EscapeString(message))
	}
	return c.send(ctx, sendRequest{
		From:    c.from,
		To:      []string{recipient},
		Subject: senderName + " shared a marketing plan with you",
		HTML:    body,
		Attachments: []attachment{{
			Filename: doc.Filename,
			Content:  base64.StdEncoding.EncodeToString(doc.Bytes),
		}},
	})
}

func (c *Client) send(ctx context.Context, req sendRequest) error {
	if c.apiKey == "" {
		return &plan.NotificationError{Err: fmt.Errorf("email delivery is not configured")}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return &plan.NotificationError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return &plan.NotificationError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &plan.NotificationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &plan.NotificationError{Err: fmt.Errorf("resend returned %d: %s", resp.StatusCode, body)}
	}
	return nil
}
