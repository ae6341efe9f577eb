package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/mpr/internal/config"
	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/review"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Cases ---

func (s *PostgresStore) CreateCase(ctx context.Context, c *models.MissingPersonCase) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.CaseStatusMissing
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO missing_persons (id, name, status, photo_url, reporter_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Status, c.PhotoURL, c.ReporterID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, id uuid.UUID) (*models.MissingPersonCase, error) {
	c := &models.MissingPersonCase{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, photo_url, reporter_id, created_at, updated_at
		 FROM missing_persons WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Status, &c.PhotoURL, &c.ReporterID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

// ListOpenCasesWithPhoto returns every case still missing that has a photo to sweep with.
func (s *PostgresStore) ListOpenCasesWithPhoto(ctx context.Context) ([]models.MissingPersonCase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, status, photo_url, reporter_id, created_at, updated_at
		 FROM missing_persons
		 WHERE status = 'missing' AND photo_url IS NOT NULL AND photo_url <> ''
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list open cases: %w", err)
	}
	defer rows.Close()

	var cases []models.MissingPersonCase
	for rows.Next() {
		var c models.MissingPersonCase
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.PhotoURL, &c.ReporterID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// --- Scan attempts ---

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAttempt(ctx context.Context, db execer, a *models.ScanAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx,
		`INSERT INTO scan_attempts
		   (id, initiator_kind, police_id, image_url, matched_image, missing_person_id, confidence, action, review_of, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Initiator.Kind, a.Initiator.PoliceID, a.ImageURL, a.MatchedImage,
		a.MissingPersonID, a.Confidence, a.Action, a.ReviewOf, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && a.ReviewOf != nil {
			return apperrors.NewConflictError("match already reviewed", err)
		}
		return fmt.Errorf("insert scan attempt: %w", err)
	}
	return nil
}

// AppendAttempt inserts one audit record. Attempts are never updated or deleted.
func (s *PostgresStore) AppendAttempt(ctx context.Context, a *models.ScanAttempt) error {
	return insertAttempt(ctx, s.pool, a)
}

const attemptColumns = `id, initiator_kind, police_id, image_url, matched_image, missing_person_id, confidence, action, review_of, created_at`

func scanAttempt(row pgx.Row) (*models.ScanAttempt, error) {
	var a models.ScanAttempt
	err := row.Scan(&a.ID, &a.Initiator.Kind, &a.Initiator.PoliceID, &a.ImageURL, &a.MatchedImage,
		&a.MissingPersonID, &a.Confidence, &a.Action, &a.ReviewOf, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id uuid.UUID) (*models.ScanAttempt, error) {
	a, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM scan_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scan attempt: %w", err)
	}
	return a, nil
}

// HasDecision reports whether a confirmed or rejected attempt already references presentedID.
func (s *PostgresStore) HasDecision(ctx context.Context, presentedID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scan_attempts WHERE review_of = $1)`, presentedID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check decision: %w", err)
	}
	return exists, nil
}

// History returns every attempt recorded for a case, oldest first.
func (s *PostgresStore) History(ctx context.Context, caseID uuid.UUID) ([]models.ScanAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM scan_attempts
		 WHERE missing_person_id = $1
		 ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var attempts []models.ScanAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return attempts, nil
}

// RejectionCounts returns, per corpus image, how many presentations for the
// case were rejected at or after since.
func (s *PostgresStore) RejectionCounts(ctx context.Context, caseID uuid.UUID, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.matched_image, COUNT(*)
		 FROM scan_attempts r
		 JOIN scan_attempts p ON p.id = r.review_of
		 WHERE r.action = 'rejected'
		   AND p.missing_person_id = $1
		   AND p.matched_image IS NOT NULL
		   AND r.created_at >= $2
		 GROUP BY p.matched_image`, caseID, since)
	if err != nil {
		return nil, fmt.Errorf("query rejection counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan rejection count: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejection counts: %w", err)
	}
	return counts, nil
}

// --- Transactions ---

type caseTx struct {
	tx pgx.Tx
}

// InTx runs fn in one transaction. Any error from fn rolls everything back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(review.CaseTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&caseTx{tx: tx})
	})
}

// MarkCaseFound moves a case from missing to found. It fails when the case
// does not exist or is no longer missing.
func (t *caseTx) MarkCaseFound(ctx context.Context, caseID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE missing_persons SET status = 'found', updated_at = NOW()
		 WHERE id = $1 AND status = 'missing'`, caseID)
	if err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case %s is not missing", caseID)
	}
	return nil
}

func (t *caseTx) AppendAttempt(ctx context.Context, a *models.ScanAttempt) error {
	return insertAttempt(ctx, t.tx, a)
}
