// Package storage persists plans and their interaction log in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/planward/planward/internal/plan"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database with methods for plans and interactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "planward.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Interaction rows cascade with their plan.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Plans ---

const planColumns = `id, business_context, questionnaire_responses, claude_analysis,
	generated_content, plan_metadata, status, completion_percentage,
	created_at, updated_at, completed_at`

// CreatePlan inserts a fresh plan record. Missing status and timestamps are
// filled in: status in_progress, percentage 0, created/updated now.
func (s *Store) CreatePlan(p plan.Plan) (plan.Plan, error) {
	if p.Status == "" {
		p.Status = plan.StatusInProgress
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	if p.BusinessContext == "" {
		p.BusinessContext = "{}"
	}
	if p.QuestionnaireResponses == "" {
		p.QuestionnaireResponses = "{}"
	}

	_, err := s.db.Exec(`
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BusinessContext, p.QuestionnaireResponses, p.ClaudeAnalysis,
		p.GeneratedContent, p.Metadata, string(p.Status), p.CompletionPercentage,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339), nullTime(p.CompletedAt),
	)
	if err != nil {
		return plan.Plan{}, err
	}
	return p, nil
}

// GetPlan returns a single plan by id.
func (s *Store) GetPlan(id string) (plan.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return plan.Plan{}, ErrNotFound
	}
	return p, err
}

// ListPlans returns plans ordered by creation time descending.
func (s *Store) ListPlans(limit, offset int) ([]plan.Plan, error) {
	rows, err := s.db.Query(`SELECT `+planColumns+` FROM plans
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// PlanUpdate describes a partial plan mutation. Nil fields are untouched;
// set fields overwrite the stored value unconditionally.
type PlanUpdate struct {
	BusinessContext        *string
	QuestionnaireResponses *string
	ClaudeAnalysis         *string
	GeneratedContent       *string
	Metadata               *string
	Status                 *plan.Status
	CompletionPercentage   *int
	CompletedAt            *time.Time
}

// UpdatePlan applies a partial update and returns the updated record.
// updated_at is always refreshed.
func (s *Store) UpdatePlan(id string, u PlanUpdate) (plan.Plan, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.BusinessContext != nil {
		add("business_context", *u.BusinessContext)
	}
	if u.QuestionnaireResponses != nil {
		add("questionnaire_responses", *u.QuestionnaireResponses)
	}
	if u.ClaudeAnalysis != nil {
		add("claude_analysis", *u.ClaudeAnalysis)
	}
	if u.GeneratedContent != nil {
		add("generated_content", *u.GeneratedContent)
	}
	if u.Metadata != nil {
		add("plan_metadata", *u.Metadata)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.CompletionPercentage != nil {
		add("completion_percentage", *u.CompletionPercentage)
	}
	if u.CompletedAt != nil {
		add("completed_at", u.CompletedAt.UTC().Format(time.RFC3339))
	}

	query := "UPDATE plans SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return plan.Plan{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return plan.Plan{}, err
	}
	if n == 0 {
		return plan.Plan{}, ErrNotFound
	}
	return s.GetPlan(id)
}

// DeletePlan removes a plan; its interactions cascade.
func (s *Store) DeletePlan(id string) error {
	res, err := s.db.Exec(`DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Interactions ---

// SaveInteraction appends one audit record. Records are never updated.
func (s *Store) SaveInteraction(i plan.Interaction) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, plan_id, interaction_type, prompt_data, claude_response, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.PlanID, i.Type, i.PromptData, i.Response, i.ProcessingTimeMs,
		i.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListInteractions returns a plan's interactions, newest first.
func (s *Store) ListInteractions(planID string, limit int) ([]plan.Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, interaction_type, prompt_data, claude_response, processing_time_ms, created_at
		FROM interactions WHERE plan_id = ? ORDER BY created_at DESC, id LIMIT ?`, planID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []plan.Interaction
	for rows.Next() {
		var i plan.Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &i.PlanID, &i.Type, &i.PromptData, &i.Response, &i.ProcessingTimeMs, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		i.CreatedAt = t
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (plan.Plan, error) {
	var p plan.Plan
	var status, createdAt, updatedAt string
	var completedAt sql.NullString
	err := row.Scan(
		&p.ID, &p.BusinessContext, &p.QuestionnaireResponses, &p.ClaudeAnalysis,
		&p.GeneratedContent, &p.Metadata, &status, &p.CompletionPercentage,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return plan.Plan{}, err
	}
	p.Status = plan.Status(status)
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return plan.Plan{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return plan.Plan{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return plan.Plan{}, fmt.Errorf("parsing completed_at: %w", err)
		}
		p.CompletedAt = &t
	}
	return p, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
