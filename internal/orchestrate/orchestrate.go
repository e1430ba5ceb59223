// Package orchestrate drives plan generation: a two-step completion flow
// (business analysis, then strategy) with state transitions persisted after
// each step and an append-only interaction log.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/planward/planward/internal/claude"
	"github.com/planward/planward/internal/extract"
	"github.com/planward/planward/internal/plan"
	"github.com/planward/planward/internal/prompt"
	"github.com/planward/planward/internal/retry"
	"github.com/planward/planward/internal/storage"
)

// Completer is the model client surface the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, purpose claude.Purpose, text string) (string, error)
	Model() string
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetPlan(id string) (plan.Plan, error)
	UpdatePlan(id string, u storage.PlanUpdate) (plan.Plan, error)
	SaveInteraction(it plan.Interaction) error
}

// Notifier sends completion emails. Failures are logged, never propagated.
type Notifier interface {
	SendCompletion(ctx context.Context, recipient string, p plan.Plan) error
}

// Generator orchestrates the analysis and strategy steps for a plan.
type Generator struct {
	store    Store
	client   Completer
	retrier  *retry.Retrier
	notifier Notifier
	now      func() time.Time

	inflight singleflight.Group
}

func New(store Store, client Completer, notifier Notifier) *Generator {
	return &Generator{
		store:    store,
		client:   client,
		retrier:  retry.New(),
		notifier: notifier,
		now:      time.Now,
	}
}

// ValidationResult is the questionnaire feedback shape.
type ValidationResult struct {
	Suggestions     []string `json:"suggestions"`
	CompletionScore int      `json:"completionScore"`
}

type generateResult struct {
	plan    plan.Plan
	elapsed time.Duration
}

// Generate runs the full two-step flow for the given plan. Concurrent calls
// for the same plan share one execution. A completed plan is returned as-is
// without touching the model. On failure the plan is marked failed and the
// step error is returned.
func (g *Generator) Generate(ctx context.Context, planID, notifyEmail string) (plan.Plan, time.Duration, error) {
	v, err, _ := g.inflight.Do(planID, func() (any, error) {
		return g.generate(ctx, planID, notifyEmail)
	})
	if err != nil {
		return plan.Plan{}, 0, err
	}
	res := v.(generateResult)
	return res.plan, res.elapsed, nil
}

func (g *Generator) generate(ctx context.Context, planID, notifyEmail string) (generateResult, error) {
	p, err := g.store.GetPlan(planID)
	if err != nil {
		return generateResult{}, err
	}
	if p.Status == plan.StatusCompleted {
		slog.Info("plan already completed, skipping generation", "plan", planID)
		return generateResult{plan: p}, nil
	}
	if err := plan.Transition(p.Status, plan.StatusAnalyzing); err != nil {
		return generateResult{}, err
	}

	started := g.now()

	p, err = g.updateProgress(planID, plan.StatusAnalyzing, 20, nil)
	if err != nil {
		g.markFailed(planID, "analysis", err)
		return generateResult{}, err
	}

	analysis, err := g.analysisStep(ctx, p)
	if err != nil {
		g.markFailed(planID, "analysis", err)
		return generateResult{}, err
	}

	p, err = g.updateProgress(planID, plan.StatusGenerating, 50, &storage.PlanUpdate{ClaudeAnalysis: &analysis})
	if err != nil {
		g.markFailed(planID, "generation", err)
		return generateResult{}, err
	}

	content, err := g.strategyStep(ctx, p, analysis)
	if err != nil {
		g.markFailed(planID, "generation", err)
		return generateResult{}, err
	}

	finished := g.now()
	elapsed := finished.Sub(started)

	meta := mustJSON(map[string]any{
		"totalProcessingTime": elapsed.Milliseconds(),
		"generatedAt":         finished.UTC().Format(time.RFC3339),
		"version":             "1.0",
	})
	completed := plan.StatusCompleted
	pct := 100
	p, err = g.store.UpdatePlan(planID, storage.PlanUpdate{
		Status:               &completed,
		CompletionPercentage: &pct,
		GeneratedContent:     &content,
		Metadata:             &meta,
		CompletedAt:          &finished,
	})
	if err != nil {
		g.markFailed(planID, "generation", err)
		return generateResult{}, err
	}

	if notifyEmail != "" {
		g.notify(ctx, notifyEmail, p)
	}
	return generateResult{plan: p, elapsed: elapsed}, nil
}

func (g *Generator) analysisStep(ctx context.Context, p plan.Plan) (string, error) {
	text := prompt.Analysis(p.BusinessContext, p.QuestionnaireResponses)
	stepStart := g.now()
	analysis, err := g.completeJSON(ctx, "analysis", claude.PurposeAnalysis, text)
	took := g.now().Sub(stepStart)
	if err != nil {
		return "", err
	}
	g.logInteraction(plan.Interaction{
		PlanID: p.ID,
		Type:   plan.InteractionAnalysis,
		PromptData: mustJSON(map[string]any{
			"businessContext": json.RawMessage(orEmptyObject(p.BusinessContext)),
			"responses":       json.RawMessage(orEmptyObject(p.QuestionnaireResponses)),
		}),
		Response:         analysis,
		ProcessingTimeMs: took.Milliseconds(),
	})
	return analysis, nil
}

func (g *Generator) strategyStep(ctx context.Context, p plan.Plan, analysis string) (string, error) {
	text := prompt.Strategy(analysis, p.BusinessContext, p.QuestionnaireResponses)
	stepStart := g.now()
	content, err := g.completeJSON(ctx, "generation", claude.PurposeStrategy, text)
	took := g.now().Sub(stepStart)
	if err != nil {
		return "", err
	}
	g.logInteraction(plan.Interaction{
		PlanID: p.ID,
		Type:   plan.InteractionGeneration,
		PromptData: mustJSON(map[string]any{
			"businessContext": json.RawMessage(orEmptyObject(p.BusinessContext)),
			"responses":       json.RawMessage(orEmptyObject(p.QuestionnaireResponses)),
			"analysis":        json.RawMessage(orEmptyObject(analysis)),
		}),
		Response:         content,
		ProcessingTimeMs: took.Milliseconds(),
	})
	return content, nil
}

// completeJSON runs one model call and parses its output, retrying parse
// failures per the retrier's budget.
func (g *Generator) completeJSON(ctx context.Context, op string, purpose claude.Purpose, text string) (string, error) {
	var out string
	err := g.retrier.Do(ctx, op, func(ctx context.Context) error {
		raw, err := g.client.Complete(ctx, purpose, text)
		if err != nil {
			return err
		}
		extracted, err := extract.JSON(raw)
		if err != nil {
			return err
		}
		if !json.Valid([]byte(extracted)) {
			return &plan.ParseError{Err: fmt.Errorf("model output is not valid JSON (%d bytes)", len(extracted))}
		}
		out = extracted
		return nil
	})
	return out, err
}

// SquareContent generates detail content for one square of the framework.
func (g *Generator) SquareContent(ctx context.Context, planID string, square int) (string, error) {
	p, err := g.store.GetPlan(planID)
	if err != nil {
		return "", err
	}
	text, err := prompt.Square(square, p.BusinessContext, p.QuestionnaireResponses, p.ClaudeAnalysis)
	if err != nil {
		return "", plan.NewValidationError("%s", err.Error())
	}
	return g.completeJSON(ctx, fmt.Sprintf("square_%d", square), claude.PurposeSquare, text)
}

// ValidateResponses asks the model for questionnaire feedback. Every failure
// degrades to an empty result; validation never blocks the user.
func (g *Generator) ValidateResponses(ctx context.Context, responses string) ValidationResult {
	out, err := g.completeJSON(ctx, "validate", claude.PurposeValidate, prompt.Validation(responses))
	if err != nil {
		slog.Warn("response validation failed", "err", err)
		return ValidationResult{Suggestions: []string{}}
	}
	var res ValidationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		slog.Warn("response validation returned unexpected shape", "err", err)
		return ValidationResult{Suggestions: []string{}}
	}
	if res.Suggestions == nil {
		res.Suggestions = []string{}
	}
	return res
}

func (g *Generator) updateProgress(planID string, status plan.Status, pct int, extra *storage.PlanUpdate) (plan.Plan, error) {
	u := storage.PlanUpdate{}
	if extra != nil {
		u = *extra
	}
	u.Status = &status
	u.CompletionPercentage = &pct
	p, err := g.store.UpdatePlan(planID, u)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("persist %s state: %w", status, err)
	}
	return p, nil
}

// markFailed records the failure on the plan and in the interaction log.
// Secondary persistence errors are logged and swallowed so the step error
// stays the one the caller sees.
func (g *Generator) markFailed(planID, step string, cause error) {
	failed := plan.StatusFailed
	meta := mustJSON(map[string]any{
		"error":    cause.Error(),
		"failedAt": g.now().UTC().Format(time.RFC3339),
	})
	if _, err := g.store.UpdatePlan(planID, storage.PlanUpdate{Status: &failed, Metadata: &meta}); err != nil {
		slog.Error("failed to mark plan as failed", "plan", planID, "err", err)
	}
	g.logInteraction(plan.Interaction{
		PlanID:     planID,
		Type:       step + "_error",
		PromptData: mustJSON(map[string]string{"step": step}),
		Response:   cause.Error(),
	})
	slog.Error("plan generation step failed", "plan", planID, "step", step, "err", cause)
}

func (g *Generator) notify(ctx context.Context, recipient string, p plan.Plan) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.SendCompletion(ctx, recipient, p); err != nil {
		slog.Warn("completion notification failed", "plan", p.ID, "err", err)
		g.logInteraction(plan.Interaction{
			PlanID:     p.ID,
			Type:       plan.InteractionEmailError,
			PromptData: mustJSON(map[string]string{"recipient": recipient, "action": "send_completion"}),
			Response:   err.Error(),
		})
		return
	}
	g.logInteraction(plan.Interaction{
		PlanID:     p.ID,
		Type:       plan.InteractionEmailCompletion,
		PromptData: mustJSON(map[string]string{"recipient": recipient}),
		Response:   "sent",
	})
}

func (g *Generator) logInteraction(it plan.Interaction) {
	if err := g.store.SaveInteraction(it); err != nil {
		slog.Error("failed to record interaction", "plan", it.PlanID, "type", it.Type, "err", err)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func orEmptyObject(s string) string {
	if s == "" || !json.Valid([]byte(s)) {
		return "{}"
	}
	return s
}
