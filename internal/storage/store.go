package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// PutResult reports whether a put() call created a new record or updated an
// existing pending one.
type PutResult string

const (
	Created PutResult = "created"
	Updated PutResult = "updated"
)

// Store is the Decision Store: durable persistence of decision
// records with content-derived IDs, status-gated mutation, and a filtered,
// paginated list operation. The Store is the single writer; reads are
// unbounded.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore wraps a *DB as a Decision Store.
func NewStore(db *DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DeriveID computes the 8-hex-digit content-derived ID for a decision. salt
// is incremented and re-hashed when the derived ID collides with an existing
// record under different content.
func DeriveID(recordedBy, decisionText string, createdAt time.Time, salt int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", recordedBy, decisionText, createdAt.UnixNano(), salt)
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Put writes a decision record. For a new ID it inserts; for an existing
// pending record it replaces the whole row; for an existing reviewed record
// it rejects any change to decision, category, stakes, confidence, or
// reasons with ErrImmutableField. No other field is checked: for a reviewed
// record, changes to tags, context, pattern, bridge, and the remaining
// fields are written like any other update.
func (s *Store) Put(ctx context.Context, d *model.Decision) (PutResult, error) {
	var result PutResult
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return s.db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			existing, err := getTx(ctx, tx, d.ID)
			if errors.Is(err, ErrNotFound) {
				if err := insertTx(ctx, tx, d); err != nil {
					return err
				}
				result = Created
				return nil
			}
			if err != nil {
				return err
			}

			if existing.Status == model.StatusReviewed {
				if err := assertMutableFieldsUnchanged(existing, d); err != nil {
					return err
				}
			}
			if err := updateTx(ctx, tx, d); err != nil {
				return err
			}
			result = Updated
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// assertMutableFieldsUnchanged enforces field immutability for reviewed
// records: decision text, category, stakes, confidence, and reasons may not
// change once a decision has been reviewed.
func assertMutableFieldsUnchanged(existing, next *model.Decision) error {
	if existing.DecisionText != next.DecisionText ||
		existing.Category != next.Category ||
		existing.Stakes != next.Stakes ||
		existing.Confidence != next.Confidence ||
		!reasonsEqual(existing.Reasons, next.Reasons) {
		return ErrImmutableField
	}
	return nil
}

func reasonsEqual(a, b []model.Reason) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Get fetches a decision by ID.
func (s *Store) Get(ctx context.Context, id string) (*model.Decision, error) {
	return getPool(ctx, s.db, id)
}

// List returns a filtered, paginated, total-counted page of decisions.
func (s *Store) List(ctx context.Context, filters model.QueryFilters, limit, offset int) (*model.Page, error) {
	where, args := buildWhere(filters)

	countSQL := "SELECT count(*) FROM decisions " + where
	var total int
	if err := s.db.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("storage: count decisions: %w", err)
	}

	listSQL := fmt.Sprintf(
		"SELECT %s FROM decisions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := s.db.pool.Query(ctx, listSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("storage: list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate decisions: %w", err)
	}

	return &model.Page{Decisions: decisions, Total: total, Offset: offset, Limit: limit}, nil
}

// Reset truncates the decisions table. reindex does not call it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.pool.Exec(ctx, "TRUNCATE decisions")
	if err != nil {
		return fmt.Errorf("storage: reset: %w", err)
	}
	return nil
}

// Count returns the number of decisions currently in the store. Used by the
// keyword index to decide whether its cached snapshot is stale.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.pool.QueryRow(ctx, "SELECT count(*) FROM decisions").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

// All streams every decision into fn, in batches, for BM25/vector reindex.
func (s *Store) All(ctx context.Context, fn func(*model.Decision) error) error {
	sql := fmt.Sprintf("SELECT %s FROM decisions ORDER BY created_at ASC", selectColumns)
	rows, err := s.db.pool.Query(ctx, sql)
	if err != nil {
		return fmt.Errorf("storage: scan all: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return rows.Err()
}

const selectColumns = `id, created_at, updated_at, reviewed_at, recorded_by, decision_text,
	confidence, category, stakes, context, status, outcome, outcome_result, lessons,
	reasons, tags, pattern, bridge, bridge_method, deliberation, project_context, review_by`

func buildWhere(f model.QueryFilters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Stakes != nil {
		add("stakes = $%d", *f.Stakes)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Agent != nil {
		add("recorded_by = $%d", *f.Agent)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d", f.Tags)
	}
	if f.Project != nil {
		add("project_context->>'project' = $%d", *f.Project)
	}
	if f.DateRange != nil {
		if f.DateRange.From != nil {
			add("created_at >= $%d", *f.DateRange.From)
		}
		if f.DateRange.To != nil {
			add("created_at <= $%d", *f.DateRange.To)
		}
	}
	if f.HasOutcome != nil {
		if *f.HasOutcome {
			clauses = append(clauses, "outcome IS NOT NULL")
		} else {
			clauses = append(clauses, "outcome IS NULL")
		}
	}
	if f.ConfidenceMin != nil {
		add("confidence >= $%d", *f.ConfidenceMin)
	}
	// f.Search is not applied here, and no caller of List applies it.

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type row interface {
	Scan(dest ...any) error
}

func scanDecision(r row) (*model.Decision, error) {
	var d model.Decision
	var reviewedAt, reviewBy *time.Time
	var outcome *model.Outcome
	var reasonsJSON, bridgeJSON, deliberationJSON, projectJSON []byte
	var tags []string

	err := r.Scan(
		&d.ID, &d.CreatedAt, &d.UpdatedAt, &reviewedAt, &d.RecordedBy, &d.DecisionText,
		&d.Confidence, &d.Category, &d.Stakes, &d.Context, &d.Status, &outcome,
		&d.OutcomeResult, &d.Lessons, &reasonsJSON, &tags, &d.Pattern, &bridgeJSON,
		&d.BridgeMethod, &deliberationJSON, &projectJSON, &reviewBy,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: scan decision: %w", err)
	}

	d.ReviewedAt = reviewedAt
	d.Outcome = outcome
	d.Tags = tags
	d.ReviewBy = reviewBy

	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &d.Reasons); err != nil {
			return nil, fmt.Errorf("storage: unmarshal reasons: %w", err)
		}
	}
	if len(bridgeJSON) > 0 {
		if err := json.Unmarshal(bridgeJSON, &d.Bridge); err != nil {
			return nil, fmt.Errorf("storage: unmarshal bridge: %w", err)
		}
	}
	if len(deliberationJSON) > 0 {
		if err := json.Unmarshal(deliberationJSON, &d.Deliberation); err != nil {
			return nil, fmt.Errorf("storage: unmarshal deliberation: %w", err)
		}
	}
	if len(projectJSON) > 0 {
		if err := json.Unmarshal(projectJSON, &d.ProjectContext); err != nil {
			return nil, fmt.Errorf("storage: unmarshal project context: %w", err)
		}
	}

	return &d, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, d *model.Decision) error {
	reasonsJSON, bridgeJSON, deliberationJSON, projectJSON, err := marshalNested(d)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO decisions (
			id, created_at, updated_at, reviewed_at, recorded_by, decision_text,
			confidence, category, stakes, context, status, outcome, outcome_result,
			lessons, reasons, tags, pattern, bridge, bridge_method, deliberation,
			project_context, review_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`,
		d.ID, d.CreatedAt, d.UpdatedAt, d.ReviewedAt, d.RecordedBy, d.DecisionText,
		d.Confidence, d.Category, d.Stakes, d.Context, d.Status, d.Outcome, d.OutcomeResult,
		d.Lessons, reasonsJSON, d.Tags, d.Pattern, bridgeJSON, d.BridgeMethod, deliberationJSON,
		projectJSON, d.ReviewBy,
	)
	if err != nil {
		return fmt.Errorf("storage: insert decision %s: %w", d.ID, err)
	}
	return nil
}

func updateTx(ctx context.Context, tx pgx.Tx, d *model.Decision) error {
	reasonsJSON, bridgeJSON, deliberationJSON, projectJSON, err := marshalNested(d)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE decisions SET
			updated_at=$2, reviewed_at=$3, decision_text=$4, confidence=$5, category=$6,
			stakes=$7, context=$8, status=$9, outcome=$10, outcome_result=$11, lessons=$12,
			reasons=$13, tags=$14, pattern=$15, bridge=$16, bridge_method=$17,
			deliberation=$18, project_context=$19, review_by=$20
		WHERE id=$1
	`,
		d.ID, d.UpdatedAt, d.ReviewedAt, d.DecisionText, d.Confidence, d.Category,
		d.Stakes, d.Context, d.Status, d.Outcome, d.OutcomeResult, d.Lessons,
		reasonsJSON, d.Tags, d.Pattern, bridgeJSON, d.BridgeMethod, deliberationJSON,
		projectJSON, d.ReviewBy,
	)
	if err != nil {
		return fmt.Errorf("storage: update decision %s: %w", d.ID, err)
	}
	return nil
}

func marshalNested(d *model.Decision) (reasons, bridge, deliberation, project []byte, err error) {
	if reasons, err = json.Marshal(d.Reasons); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("storage: marshal reasons: %w", err)
	}
	if bridge, err = json.Marshal(d.Bridge); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("storage: marshal bridge: %w", err)
	}
	if deliberation, err = json.Marshal(d.Deliberation); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("storage: marshal deliberation: %w", err)
	}
	if project, err = json.Marshal(d.ProjectContext); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("storage: marshal project context: %w", err)
	}
	return reasons, bridge, deliberation, project, nil
}

func getTx(ctx context.Context, tx pgx.Tx, id string) (*model.Decision, error) {
	sql := fmt.Sprintf("SELECT %s FROM decisions WHERE id=$1", selectColumns)
	rows, err := tx.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanDecision(rows)
}

func getPool(ctx context.Context, db *DB, id string) (*model.Decision, error) {
	sql := fmt.Sprintf("SELECT %s FROM decisions WHERE id=$1", selectColumns)
	rows, err := db.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanDecision(rows)
}
