package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/internal/repository"
)

// testPool connects to TEST_POSTGRES_URL and resets the tables. Tests are
// skipped when the variable is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE schools, tenders, scan_sessions RESTART IDENTITY`)
	require.NoError(t, err)
	return pool
}

func TestSchoolRepo(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSchoolRepo(pool)

	created, err := repo.ReplaceSchools(ctx, []domain.School{
		{CodiceMeccanografico: "CSIC80000A", DenominazioneScuola: "IC Rende", Comune: "RENDE", Provincia: "CS", Regione: "CALABRIA", AreaGeografica: "SUD"},
		{CodiceMeccanografico: "MIIC8AB00C", DenominazioneScuola: "IC Milano", Comune: "MILANO", Provincia: "MI", Regione: "LOMBARDIA", AreaGeografica: "NORD OVEST", DetectedPlatforms: []string{"argo"}},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, int64(1), created[0].ID)

	list, err := repo.ListSchools(ctx, domain.SchoolFilter{Province: []string{"MI"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"argo"}, list[0].DetectedPlatforms)

	list, err = repo.ListSchools(ctx, domain.SchoolFilter{Search: "rende"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repo.ListSchools(ctx, domain.SchoolFilter{Search: "_"})
	require.NoError(t, err)
	assert.Empty(t, list, "wildcards in the search are literal")

	require.NoError(t, repo.AddDetectedPlatforms(ctx, created[1].ID, []platform.Platform{platform.Axios, platform.Argo}))
	got, err := repo.GetSchool(ctx, created[1].ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"argo", "axios"}, got.DetectedPlatforms)

	_, err = repo.GetSchool(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	geo, err := repo.GeographicData(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NORD OVEST", "SUD"}, geo.Areas)
	assert.Equal(t, []string{"CS"}, geo.Provinces["CALABRIA"])
}

func TestTenderRepoUpsert(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewTenderRepo(pool)

	_, err := repo.SaveTenders(ctx, []domain.Tender{{SchoolID: 1, Title: "Bando mensa", Type: domain.TenderBando, Platform: platform.Edu, SourceURL: "https://a", Hash: "h1"}})
	require.NoError(t, err)
	_, err = repo.SaveTenders(ctx, []domain.Tender{{SchoolID: 1, Title: "Bando mensa 2", Type: domain.TenderBando, Platform: platform.Edu, SourceURL: "https://a", Hash: "h1"}})
	require.NoError(t, err)

	list, err := repo.ListTenders(ctx, domain.TenderFilter{SchoolIDs: []int64{1}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bando mensa 2", list[0].Title)
	assert.Nil(t, list[0].Deadline)

	require.NoError(t, repo.ClearTenders(ctx))
	list, err = repo.ListTenders(ctx, domain.TenderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSessionRepoUpdate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSessionRepo(pool)

	created, err := repo.CreateSession(ctx, domain.NewScanSession(2, time.Now()))
	require.NoError(t, err)

	_, err = repo.UpdateSession(ctx, created.ID, domain.SessionUpdate{
		CompletedSchoolsDelta: 1,
		TotalTendersDelta:     3,
		Progress:              map[int64]domain.SchoolProgress{7: {Status: domain.SchoolCompleted, TendersFound: 3}},
	})
	require.NoError(t, err)

	// terminal entries are never overwritten
	_, err = repo.UpdateSession(ctx, created.ID, domain.SessionUpdate{
		Progress: map[int64]domain.SchoolProgress{7: {Status: domain.SchoolRunning}},
	})
	require.NoError(t, err)

	got, err := repo.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedSchools)
	assert.Equal(t, 3, got.TotalTenders)
	assert.Equal(t, domain.SchoolCompleted, got.Progress[7].Status)

	_, err = repo.UpdateSession(ctx, created.ID, domain.SessionUpdate{CompletedSchoolsDelta: 5})
	assert.ErrorIs(t, err, domain.ErrCompletedOverflow)

	_, err = repo.GetSession(ctx, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
