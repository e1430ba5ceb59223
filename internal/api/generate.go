package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/storage"
)

type generateRequest struct {
	NotifyEmail string `json:"notifyEmail"`
}

type generateResponse struct {
	Success        bool     `json:"success"`
	Plan           planView `json:"plan"`
	ProcessingTime int64    `json:"processingTime"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// The body is optional.
		var req generateRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, elapsed, err := deps.Generator.Generate(r.Context(), id, req.NotifyEmail)
		if err != nil {
			writeGenerateError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(generateResponse{
			Success:        true,
			Plan:           planToView(p, nil),
			ProcessingTime: elapsed.Milliseconds(),
		})
	}
}

func handleSquare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		square, err := strconv.Atoi(chi.URLParam(r, "square"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "square must be a number")
			return
		}

		content, err := deps.Generator.SquareContent(r.Context(), id, square)
		if err != nil {
			writeGenerateError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"square":  square,
			"content": json.RawMessage(content),
		})
	}
}

type validateRequest struct {
	Responses json.RawMessage `json:"responses"`
}

func handleValidateResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Responses) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "responses is required")
			return
		}

		res := deps.Generator.ValidateResponses(r.Context(), string(req.Responses))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func writeGenerateError(w http.ResponseWriter, err error) {
	var (
		stateErr      *plan.StateError
		validationErr *plan.ValidationError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "plan not found")
	case errors.As(err, &stateErr):
		httpError(w, http.StatusConflict, "invalid_state", "%v", err)
	case errors.As(err, &validationErr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, new(*plan.UpstreamError)), errors.As(err, new(*plan.RetryExhaustedError)):
		httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "generation failed: %v", err)
	}
}
