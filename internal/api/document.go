package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/render"
	"github.com/planward/planward/internal/storage"
)

func handleDownload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Store.GetPlan(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get plan: %v", err)
			return
		}
		if p.Status != plan.StatusCompleted {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "plan is not completed yet (status: %s)", p.Status)
			return
		}

		started := time.Now()
		doc, err := render.PDF(p, started)
		if err != nil {
			logDocInteraction(deps, p.ID, plan.InteractionPDFError, 0, err.Error())
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render pdf: %v", err)
			return
		}
		logDocInteraction(deps, p.ID, plan.InteractionPDFDownload, time.Since(started).Milliseconds(), doc.Filename)

		w.Header().Set("Content-Type", doc.ContentType)
		w.Header().Set("Content-Disposition", doc.Disposition())
		w.Header().Set("Content-Length", strconv.Itoa(len(doc.Bytes)))
		w.Write(doc.Bytes)
	}
}

type emailRequest struct {
	Action         string `json:"action"`
	RecipientEmail string `json:"recipientEmail"`
	SenderEmail    string `json:"senderEmail"`
	Message        string `json:"message"`
}

// senderName derives a display name from the sender's address local part.
func (r emailRequest) senderName() string {
	if r.SenderEmail == "" {
		return "A colleague"
	}
	if i := strings.Index(r.SenderEmail, "@"); i > 0 {
		return r.SenderEmail[:i]
	}
	return r.SenderEmail
}

func handleEmail(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req emailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.RecipientEmail == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "recipientEmail is required")
			return
		}
		if req.Action == "" {
			req.Action = "send_completion"
		}
		if req.Action != "send_completion" && req.Action != "share" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown action %q", req.Action)
			return
		}
		if deps.Mailer == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "email delivery is not configured")
			return
		}

		p, err := deps.Store.GetPlan(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get plan: %v", err)
			return
		}

		started := time.Now()
		var interactionType string
		switch req.Action {
		case "send_completion":
			interactionType = plan.InteractionEmailCompletion
			err = deps.Mailer.SendCompletion(r.Context(), req.RecipientEmail, p)

		case "share":
			if p.Status != plan.StatusCompleted {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "only completed plans can be shared (status: %s)", p.Status)
				return
			}
			var doc render.Document
			doc, err = render.PDF(p, started)
			if err != nil {
				logDocInteraction(deps, p.ID, plan.InteractionEmailError, 0, err.Error())
				httpError(w, http.StatusInternalServerError, "api_error", "failed to render pdf: %v", err)
				return
			}
			interactionType = plan.InteractionEmailShare
			err = deps.Mailer.SendShare(r.Context(), req.RecipientEmail, req.senderName(), req.Message, p, doc)
		}

		if err != nil {
			logDocInteraction(deps, p.ID, plan.InteractionEmailError, time.Since(started).Milliseconds(), err.Error())
			httpError(w, http.StatusBadGateway, "api_error", "failed to send email: %v", err)
			return
		}
		logDocInteraction(deps, p.ID, interactionType, time.Since(started).Milliseconds(), "sent to "+req.RecipientEmail)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	}
}

// logDocInteraction appends a download/email audit record. Log failures do
// not affect the response.
func logDocInteraction(deps Deps, planID, typ string, tookMs int64, detail string) {
	promptData, _ := json.Marshal(map[string]string{"detail": detail})
	_ = deps.Store.SaveInteraction(plan.Interaction{
		PlanID:           planID,
		Type:             typ,
		PromptData:       string(promptData),
		Response:         detail,
		ProcessingTimeMs: tookMs,
	})
}
