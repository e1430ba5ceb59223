package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations() error: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("AppliedMigrations() = %v, want [1 ...]", versions)
	}
}

func TestCreateAndGetPlan(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreatePlan(plan.Plan{
		ID:                     uuid.New().String(),
		BusinessContext:        `{"industry":"ecommerce"}`,
		QuestionnaireResponses: `{"q1":"a1"}`,
	})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}
	if created.Status != plan.StatusInProgress {
		t.Errorf("Status = %s, want in_progress", created.Status)
	}
	if created.CompletionPercentage != 0 {
		t.Errorf("CompletionPercentage = %d, want 0", created.CompletionPercentage)
	}

	got, err := s.GetPlan(created.ID)
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if got.BusinessContext != `{"industry":"ecommerce"}` {
		t.Errorf("BusinessContext = %q", got.BusinessContext)
	}
	if got.GeneratedContent != "" {
		t.Errorf("GeneratedContent = %q, want empty", got.GeneratedContent)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestCreatePlan_DefaultsEmptyObjects(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreatePlan(plan.Plan{ID: uuid.New().String()})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}
	got, err := s.GetPlan(created.ID)
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if got.BusinessContext != "{}" || got.QuestionnaireResponses != "{}" {
		t.Errorf("defaults = %q / %q, want {} / {}", got.BusinessContext, got.QuestionnaireResponses)
	}
}

func TestGetPlan_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPlan("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPlan(missing) err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePlan_PartialFields(t *testing.T) {
	s := openTestStore(t)
	created, err := s.CreatePlan(plan.Plan{ID: uuid.New().String()})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}

	status := plan.StatusAnalyzing
	pct := 20
	updated, err := s.UpdatePlan(created.ID, PlanUpdate{Status: &status, CompletionPercentage: &pct})
	if err != nil {
		t.Fatalf("UpdatePlan() error: %v", err)
	}
	if updated.Status != plan.StatusAnalyzing || updated.CompletionPercentage != 20 {
		t.Errorf("after update: status=%s pct=%d", updated.Status, updated.CompletionPercentage)
	}
	// Untouched fields survive.
	if updated.BusinessContext != "{}" {
		t.Errorf("BusinessContext = %q, want {}", updated.BusinessContext)
	}

	analysis := `{"growthPotential":"high"}`
	content := `{"onePagePlan":{}}`
	done := plan.StatusCompleted
	full := 100
	completedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	updated, err = s.UpdatePlan(created.ID, PlanUpdate{
		ClaudeAnalysis:       &analysis,
		GeneratedContent:     &content,
		Status:               &done,
		CompletionPercentage: &full,
		CompletedAt:          &completedAt,
	})
	if err != nil {
		t.Fatalf("UpdatePlan() error: %v", err)
	}
	if updated.GeneratedContent != content || updated.Status != plan.StatusCompleted {
		t.Errorf("after completion: content=%q status=%s", updated.GeneratedContent, updated.Status)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v, want %v", updated.CompletedAt, completedAt)
	}
}

func TestUpdatePlan_NotFound(t *testing.T) {
	s := openTestStore(t)
	pct := 50
	_, err := s.UpdatePlan("missing", PlanUpdate{CompletionPercentage: &pct})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePlan(missing) err = %v, want ErrNotFound", err)
	}
}

func TestDeletePlan_CascadesInteractions(t *testing.T) {
	s := openTestStore(t)
	created, err := s.CreatePlan(plan.Plan{ID: uuid.New().String()})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}

	for _, typ := range []string{plan.InteractionAnalysis, plan.InteractionGeneration} {
		err := s.SaveInteraction(plan.Interaction{
			ID:     uuid.New().String(),
			PlanID: created.ID,
			Type:   typ,
		})
		if err != nil {
			t.Fatalf("SaveInteraction(%s) error: %v", typ, err)
		}
	}

	if err := s.DeletePlan(created.ID); err != nil {
		t.Fatalf("DeletePlan() error: %v", err)
	}
	if _, err := s.GetPlan(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPlan after delete err = %v, want ErrNotFound", err)
	}
	left, err := s.ListInteractions(created.ID, 10)
	if err != nil {
		t.Fatalf("ListInteractions() error: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("interactions after cascade = %d, want 0", len(left))
	}

	if err := s.DeletePlan(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePlan err = %v, want ErrNotFound", err)
	}
}

func TestListInteractions_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	created, err := s.CreatePlan(plan.Plan{ID: uuid.New().String()})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, typ := range []string{plan.InteractionAnalysis, plan.InteractionGeneration, plan.InteractionPDFDownload} {
		err := s.SaveInteraction(plan.Interaction{
			ID:               uuid.New().String(),
			PlanID:           created.ID,
			Type:             typ,
			ProcessingTimeMs: int64(i * 100),
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveInteraction() error: %v", err)
		}
	}

	got, err := s.ListInteractions(created.ID, 2)
	if err != nil {
		t.Fatalf("ListInteractions() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != plan.InteractionPDFDownload || got[1].Type != plan.InteractionGeneration {
		t.Errorf("order = %s, %s; want pdf_download, generation", got[0].Type, got[1].Type)
	}
}

func TestSaveInteraction_GeneratesID(t *testing.T) {
	s := openTestStore(t)
	created, err := s.CreatePlan(plan.Plan{ID: uuid.New().String()})
	if err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}

	for _, typ := range []string{plan.InteractionAnalysis, plan.InteractionGeneration} {
		err := s.SaveInteraction(plan.Interaction{PlanID: created.ID, Type: typ})
		if err != nil {
			t.Fatalf("SaveInteraction(%s) error: %v", typ, err)
		}
	}

	got, err := s.ListInteractions(created.ID, 10)
	if err != nil {
		t.Fatalf("ListInteractions() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID == "" || got[1].ID == "" {
		t.Errorf("interaction IDs not generated: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].ID == got[1].ID {
		t.Errorf("interaction IDs collide: %q", got[0].ID)
	}
}

func TestListPlans(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.CreatePlan(plan.Plan{
			ID:        uuid.New().String(),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreatePlan() error: %v", err)
		}
	}

	got, err := s.ListPlans(2, 0)
	if err != nil {
		t.Fatalf("ListPlans() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Errorf("plans not newest-first: %v, %v", got[0].CreatedAt, got[1].CreatedAt)
	}

	rest, err := s.ListPlans(10, 2)
	if err != nil {
		t.Fatalf("ListPlans(offset) error: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("offset page len = %d, want 1", len(rest))
	}
}
