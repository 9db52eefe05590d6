package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/internal/repository"
)

const schoolColumns = `id, codice_meccanografico, denominazione_scuola, codice_istituto_riferimento,
	denominazione_istituto_riferimento, indirizzo_email, sito_web, indirizzo, cap, comune,
	provincia, regione, area_geografica, tipo_istituto, detected_platforms`

// SchoolRepoImpl implements repository.SchoolRepository on PostgreSQL.
type SchoolRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.SchoolRepository = (*SchoolRepoImpl)(nil)

func NewSchoolRepo(db *pgxpool.Pool) *SchoolRepoImpl {
	return &SchoolRepoImpl{db: db}
}

// ReplaceSchools swaps the whole registry inside one transaction.
func (r *SchoolRepoImpl) ReplaceSchools(ctx context.Context, schools []domain.School) ([]domain.School, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE schools RESTART IDENTITY`); err != nil {
		return nil, fmt.Errorf("truncate schools: %w", err)
	}

	created := make([]domain.School, len(schools))
	copy(created, schools)

	if len(created) > 0 {
		batch := &pgx.Batch{}
		for i := range created {
			s := &created[i]
			if s.DetectedPlatforms == nil {
				s.DetectedPlatforms = []string{}
			}
			tags, err := json.Marshal(s.DetectedPlatforms)
			if err != nil {
				return nil, err
			}
			batch.Queue(`INSERT INTO schools (codice_meccanografico, denominazione_scuola, codice_istituto_riferimento,
				denominazione_istituto_riferimento, indirizzo_email, sito_web, indirizzo, cap, comune,
				provincia, regione, area_geografica, tipo_istituto, detected_platforms)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				RETURNING id`,
				s.CodiceMeccanografico, s.DenominazioneScuola, s.CodiceIstitutoRiferimento,
				s.DenominazioneIstitutoRiferimento, s.IndirizzoEmail, s.SitoWeb, s.Indirizzo, s.CAP, s.Comune,
				s.Provincia, s.Regione, s.AreaGeografica, s.TipoIstituto, tags,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&s.ID)
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("insert schools: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *SchoolRepoImpl) ListSchools(ctx context.Context, filter domain.SchoolFilter) ([]domain.School, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AreaGeografica != "" {
		where = append(where, "area_geografica = "+arg(filter.AreaGeografica))
	}
	if filter.Regione != "" {
		where = append(where, "regione = "+arg(filter.Regione))
	}
	if len(filter.Province) > 0 {
		where = append(where, "provincia = ANY("+arg(filter.Province)+")")
	}
	if filter.Search != "" {
		p := arg(containsPattern(filter.Search))
		where = append(where, fmt.Sprintf("(denominazione_scuola ILIKE %[1]s OR codice_meccanografico ILIKE %[1]s OR comune ILIKE %[1]s)", p))
	}

	query := `SELECT ` + schoolColumns + ` FROM schools`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schools := make([]domain.School, 0)
	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		schools = append(schools, *s)
	}
	return schools, rows.Err()
}

func (r *SchoolRepoImpl) GetSchool(ctx context.Context, id int64) (*domain.School, error) {
	row := r.db.QueryRow(ctx, `SELECT `+schoolColumns+` FROM schools WHERE id = $1`, id)
	s, err := scanSchool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return s, err
}

// AddDetectedPlatforms unions tags into the stored JSON array.
func (r *SchoolRepoImpl) AddDetectedPlatforms(ctx context.Context, id int64, tags []platform.Platform) error {
	if tags == nil {
		tags = []platform.Platform{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE schools SET detected_platforms = (
			SELECT COALESCE(jsonb_agg(DISTINCT v), '[]'::jsonb)
			FROM jsonb_array_elements_text(detected_platforms || $2::jsonb) AS v
		)
		WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SchoolRepoImpl) GeographicData(ctx context.Context) (*domain.GeographicData, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT area_geografica, regione, provincia
		FROM schools
		WHERE area_geografica <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triples []domain.School
	for rows.Next() {
		var s domain.School
		if err := rows.Scan(&s.AreaGeografica, &s.Regione, &s.Provincia); err != nil {
			return nil, err
		}
		triples = append(triples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.GeographicDataFrom(triples), nil
}

func scanSchool(row pgx.Row) (*domain.School, error) {
	var (
		s    domain.School
		tags []byte
	)
	err := row.Scan(
		&s.ID, &s.CodiceMeccanografico, &s.DenominazioneScuola, &s.CodiceIstitutoRiferimento,
		&s.DenominazioneIstitutoRiferimento, &s.IndirizzoEmail, &s.SitoWeb, &s.Indirizzo, &s.CAP, &s.Comune,
		&s.Provincia, &s.Regione, &s.AreaGeografica, &s.TipoIstituto, &tags,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &s.DetectedPlatforms); err != nil {
		return nil, fmt.Errorf("decode detected platforms: %w", err)
	}
	if s.DetectedPlatforms == nil {
		s.DetectedPlatforms = []string{}
	}
	return &s, nil
}
