package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/planward/planward/internal/orchestrate"
	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/render"
	"github.com/planward/planward/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PlanGenerator abstracts the orchestrator for the API layer.
type PlanGenerator interface {
	Generate(ctx context.Context, planID, notifyEmail string) (plan.Plan, time.Duration, error)
	SquareContent(ctx context.Context, planID string, square int) (string, error)
	ValidateResponses(ctx context.Context, responses string) orchestrate.ValidationResult
}

// Mailer abstracts email delivery for the API layer.
type Mailer interface {
	SendCompletion(ctx context.Context, recipient string, p plan.Plan) error
	SendShare(ctx context.Context, recipient, senderName, message string, p plan.Plan, doc render.Document) error
}

type Deps struct {
	Store     *storage.Store
	Generator PlanGenerator
	Mailer    Mailer // optional; if nil, email endpoints report delivery as unavailable
	Token     string // optional; empty disables bearer auth
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(g chi.Router) {
		if deps.Token != "" {
			g.Use(BearerAuth(deps.Token))
		}

		g.Post("/plans", handleCreatePlan(deps))
		g.Get("/plans", handleListPlans(deps))
		g.Get("/plans/{id}", handleGetPlan(deps))
		g.Put("/plans/{id}", handleUpdatePlan(deps))
		g.Delete("/plans/{id}", handleDeletePlan(deps))
		g.Get("/plans/{id}/interactions", handleListInteractions(deps))

		g.Post("/plans/{id}/generate", handleGenerate(deps))
		g.Post("/plans/{id}/squares/{square}", handleSquare(deps))
		g.Post("/validate-responses", handleValidateResponses(deps))

		g.Get("/plans/{id}/download", handleDownload(deps))
		g.Post("/plans/{id}/email", handleEmail(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type createPlanRequest struct {
	BusinessContext        json.RawMessage `json:"businessContext"`
	QuestionnaireResponses json.RawMessage `json:"questionnaireResponses"`
}

func handleCreatePlan(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createPlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.QuestionnaireResponses) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "questionnaireResponses is required")
			return
		}
		if len(req.BusinessContext) == 0 {
			req.BusinessContext = json.RawMessage("{}")
		}

		p := plan.Plan{
			ID:                     uuid.New().String(),
			BusinessContext:        string(req.BusinessContext),
			QuestionnaireResponses: string(req.QuestionnaireResponses),
		}
		created, err := deps.Store.CreatePlan(p)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create plan: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(planToView(created, nil))
	}
}

func handleListPlans(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		plans, err := deps.Store.ListPlans(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list plans: %v", err)
			return
		}

		views := make([]planView, 0, len(plans))
		for _, p := range plans {
			views = append(views, planToView(p, nil))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleGetPlan(deps Deps) http.HandlerFunc {
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

		interactions, err := deps.Store.ListInteractions(id, 10)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(planToView(p, interactions))
	}
}

type updatePlanRequest struct {
	BusinessContext        json.RawMessage `json:"businessContext"`
	QuestionnaireResponses json.RawMessage `json:"questionnaireResponses"`
	ClaudeAnalysis         json.RawMessage `json:"claudeAnalysis"`
	GeneratedContent       json.RawMessage `json:"generatedContent"`
	Metadata               json.RawMessage `json:"metadata"`
	Status                 *string         `json:"status"`
	CompletionPercentage   *int            `json:"completionPercentage"`
}

// handleUpdatePlan applies a partial update. Status changes here are an
// administrative override: any known status is accepted, without lifecycle
// ordering checks.
func handleUpdatePlan(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req updatePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var u storage.PlanUpdate
		if req.BusinessContext != nil {
			s := string(req.BusinessContext)
			u.BusinessContext = &s
		}
		if req.QuestionnaireResponses != nil {
			s := string(req.QuestionnaireResponses)
			u.QuestionnaireResponses = &s
		}
		if req.ClaudeAnalysis != nil {
			s := string(req.ClaudeAnalysis)
			u.ClaudeAnalysis = &s
		}
		if req.GeneratedContent != nil {
			s := string(req.GeneratedContent)
			u.GeneratedContent = &s
		}
		if req.Metadata != nil {
			s := string(req.Metadata)
			u.Metadata = &s
		}
		if req.Status != nil {
			st := plan.Status(*req.Status)
			if !plan.ValidStatus(st) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", *req.Status)
				return
			}
			u.Status = &st
		}
		if req.CompletionPercentage != nil {
			if *req.CompletionPercentage < 0 || *req.CompletionPercentage > 100 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "completionPercentage must be 0-100")
				return
			}
			u.CompletionPercentage = req.CompletionPercentage
		}

		p, err := deps.Store.UpdatePlan(id, u)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update plan: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(planToView(p, nil))
	}
}

func handleDeletePlan(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeletePlan(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete plan: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 20, 100)

		if _, err := deps.Store.GetPlan(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get plan: %v", err)
			return
		}

		interactions, err := deps.Store.ListInteractions(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		views := make([]interactionView, 0, len(interactions))
		for _, it := range interactions {
			views = append(views, interactionToView(it))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

type planView struct {
	ID                     string            `json:"id"`
	BusinessContext        json.RawMessage   `json:"businessContext"`
	QuestionnaireResponses json.RawMessage   `json:"questionnaireResponses"`
	ClaudeAnalysis         json.RawMessage   `json:"claudeAnalysis"`
	GeneratedContent       json.RawMessage   `json:"generatedContent"`
	Metadata               json.RawMessage   `json:"metadata"`
	Status                 plan.Status       `json:"status"`
	CompletionPercentage   int               `json:"completionPercentage"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
	CompletedAt            *time.Time        `json:"completedAt,omitempty"`
	Interactions           []interactionView `json:"interactions,omitempty"`
}

type interactionView struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	PromptData       json.RawMessage `json:"promptData"`
	Response         json.RawMessage `json:"response"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func planToView(p plan.Plan, interactions []plan.Interaction) planView {
	v := planView{
		ID:                     p.ID,
		BusinessContext:        safeJSON(p.BusinessContext),
		QuestionnaireResponses: safeJSON(p.QuestionnaireResponses),
		ClaudeAnalysis:         safeJSON(p.ClaudeAnalysis),
		GeneratedContent:       safeJSON(p.GeneratedContent),
		Metadata:               safeJSON(p.Metadata),
		Status:                 p.Status,
		CompletionPercentage:   p.CompletionPercentage,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
		CompletedAt:            p.CompletedAt,
	}
	for _, it := range interactions {
		v.Interactions = append(v.Interactions, interactionToView(it))
	}
	return v
}

func interactionToView(it plan.Interaction) interactionView {
	return interactionView{
		ID:               it.ID,
		Type:             it.Type,
		PromptData:       safeJSON(it.PromptData),
		Response:         safeJSONOrString(it.Response),
		ProcessingTimeMs: it.ProcessingTimeMs,
		CreatedAt:        it.CreatedAt,
	}
}

// safeJSON returns the stored text as a raw JSON value, or null when the text
// is empty or corrupted. A bad row must not break every read of the record.
func safeJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// safeJSONOrString is safeJSON but quotes plain text instead of nulling it;
// interaction responses may be prose (error messages, delivery receipts).
func safeJSONOrString(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
