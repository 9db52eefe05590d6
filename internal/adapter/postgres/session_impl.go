package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/repository"
)

// SessionRepoImpl implements repository.SessionRepository on PostgreSQL.
// Updates lock the row so concurrent per-school workers serialise on it.
type SessionRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.SessionRepository = (*SessionRepoImpl)(nil)

func NewSessionRepo(db *pgxpool.Pool) *SessionRepoImpl {
	return &SessionRepoImpl{db: db}
}

func (r *SessionRepoImpl) CreateSession(ctx context.Context, session *domain.ScanSession) (*domain.ScanSession, error) {
	created := session.Clone()
	progress, err := json.Marshal(created.Progress)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO scan_sessions (status, total_schools, completed_schools, total_tenders, progress, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(created.Status), created.TotalSchools, created.CompletedSchools, created.TotalTenders,
		progress, created.StartedAt, created.CompletedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

func (r *SessionRepoImpl) GetSession(ctx context.Context, id int64) (*domain.ScanSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return s, err
}

// UpdateSession reads the row FOR UPDATE, merges the update and writes it
// back in the same transaction.
func (r *SessionRepoImpl) UpdateSession(ctx context.Context, id int64, update domain.SessionUpdate) (*domain.ScanSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx, selectSession+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := domain.ApplyUpdate(s, update); err != nil {
		return nil, err
	}

	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE scan_sessions
		SET status = $2, completed_schools = $3, total_tenders = $4, progress = $5, completed_at = $6
		WHERE id = $1`,
		id, string(s.Status), s.CompletedSchools, s.TotalTenders, progress, s.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

const selectSession = `SELECT id, status, total_schools, completed_schools, total_tenders, progress, started_at, completed_at FROM scan_sessions`

func scanSession(row pgx.Row) (*domain.ScanSession, error) {
	var (
		s        domain.ScanSession
		status   string
		progress []byte
	)
	if err := row.Scan(&s.ID, &status, &s.TotalSchools, &s.CompletedSchools, &s.TotalTenders,
		&progress, &s.StartedAt, &s.CompletedAt); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	s.Progress = make(map[int64]domain.SchoolProgress)
	if err := json.Unmarshal(progress, &s.Progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &s, nil
}
