package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/internal/repository"
)

// TenderRepoImpl implements repository.TenderRepository on PostgreSQL.
type TenderRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.TenderRepository = (*TenderRepoImpl)(nil)

func NewTenderRepo(db *pgxpool.Pool) *TenderRepoImpl {
	return &TenderRepoImpl{db: db}
}

// SaveTenders upserts every tender in a single batch; a known hash keeps
// its id and created_at.
func (r *TenderRepoImpl) SaveTenders(ctx context.Context, tenders []domain.Tender) (int, error) {
	if len(tenders) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range tenders {
		batch.Queue(`INSERT INTO tenders (school_id, title, excerpt, deadline, type, platform, pdf_url, source_url, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (hash) DO UPDATE SET
				title = EXCLUDED.title,
				excerpt = EXCLUDED.excerpt,
				deadline = EXCLUDED.deadline,
				type = EXCLUDED.type,
				pdf_url = EXCLUDED.pdf_url,
				source_url = EXCLUDED.source_url`,
			t.SchoolID, t.Title, t.Excerpt, t.Deadline, string(t.Type), string(t.Platform), t.PDFURL, t.SourceURL, t.Hash,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert tenders: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(tenders), nil
}

func (r *TenderRepoImpl) ListTenders(ctx context.Context, filter domain.TenderFilter) ([]domain.Tender, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.SchoolIDs) > 0 {
		where = append(where, "school_id = ANY("+arg(filter.SchoolIDs)+")")
	}
	if filter.Type != "" {
		where = append(where, "type = "+arg(string(filter.Type)))
	}
	if filter.Platform != "" {
		where = append(where, "platform = "+arg(string(filter.Platform)))
	}
	if filter.Search != "" {
		p := arg(containsPattern(filter.Search))
		where = append(where, fmt.Sprintf("(title ILIKE %[1]s OR excerpt ILIKE %[1]s)", p))
	}

	query := `SELECT id, school_id, title, excerpt, deadline, type, platform, pdf_url, source_url, hash, created_at FROM tenders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenders := make([]domain.Tender, 0)
	for rows.Next() {
		var (
			t         domain.Tender
			tType     string
			tPlatform string
		)
		if err := rows.Scan(&t.ID, &t.SchoolID, &t.Title, &t.Excerpt, &t.Deadline, &tType, &tPlatform,
			&t.PDFURL, &t.SourceURL, &t.Hash, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = domain.TenderType(tType)
		t.Platform = platform.Platform(tPlatform)
		tenders = append(tenders, t)
	}
	return tenders, rows.Err()
}

func (r *TenderRepoImpl) ClearTenders(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `TRUNCATE tenders RESTART IDENTITY`)
	return err
}
