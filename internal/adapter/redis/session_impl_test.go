package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/repository"
)

func newTestRepo(t *testing.T, ttl time.Duration) (*SessionRepoImpl, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionRepo(client, ttl), mr
}

func TestCreateAndGetSession(t *testing.T) {
	repo, mr := newTestRepo(t, time.Hour)
	ctx := context.Background()

	first, err := repo.CreateSession(ctx, domain.NewScanSession(3, time.Now()))
	require.NoError(t, err)
	second, err := repo.CreateSession(ctx, domain.NewScanSession(1, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	got, err := repo.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionRunning, got.Status)
	assert.Equal(t, 3, got.TotalSchools)
	assert.NotNil(t, got.Progress)

	assert.Equal(t, time.Hour, mr.TTL("scan_session:1"))

	_, err = repo.GetSession(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionExpires(t *testing.T) {
	repo, mr := newTestRepo(t, time.Minute)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, domain.NewScanSession(1, time.Now()))
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = repo.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateSessionConcurrentMerge(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, domain.NewScanSession(20, time.Now()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := repo.UpdateSession(ctx, s.ID, domain.SessionUpdate{
				CompletedSchoolsDelta: 1,
				TotalTendersDelta:     1,
				Progress:              map[int64]domain.SchoolProgress{id: {Status: domain.SchoolCompleted, TendersFound: 1}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.CompletedSchools)
	assert.Equal(t, 20, got.TotalTenders)
	assert.Len(t, got.Progress, 20)
}

func TestUpdateSessionInvariants(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, domain.NewScanSession(1, time.Now()))
	require.NoError(t, err)

	done := time.Now()
	_, err = repo.UpdateSession(ctx, s.ID, domain.SessionUpdate{
		Status:                domain.StatusPtr(domain.SessionCompleted),
		CompletedSchoolsDelta: 1,
		CompletedAt:           &done,
	})
	require.NoError(t, err)

	_, err = repo.UpdateSession(ctx, s.ID, domain.SessionUpdate{Status: domain.StatusPtr(domain.SessionRunning)})
	assert.ErrorIs(t, err, domain.ErrStatusRegression)

	_, err = repo.UpdateSession(ctx, s.ID, domain.SessionUpdate{CompletedSchoolsDelta: 1})
	assert.ErrorIs(t, err, domain.ErrCompletedOverflow)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	assert.Equal(t, 1, got.CompletedSchools)
	require.NotNil(t, got.CompletedAt)

	_, err = repo.UpdateSession(ctx, 77, domain.SessionUpdate{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
