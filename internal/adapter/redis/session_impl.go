// Package redis implements the scan session store on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/repository"
)

const (
	sessionKeyPrefix = "scan_session:"
	sessionSeqKey    = "scan_session:seq"

	// maxUpdateRetries bounds optimistic retries when workers race on a session.
	maxUpdateRetries = 100
)

// SessionRepoImpl stores each session as a JSON value with a TTL and
// updates it with WATCH/MULTI so concurrent merges never lose writes.
type SessionRepoImpl struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.SessionRepository = (*SessionRepoImpl)(nil)

// NewSessionRepo creates a repository; ttl <= 0 keeps sessions forever.
func NewSessionRepo(client *redis.Client, ttl time.Duration) *SessionRepoImpl {
	if ttl < 0 {
		ttl = 0
	}
	return &SessionRepoImpl{client: client, ttl: ttl}
}

func (r *SessionRepoImpl) key(id int64) string {
	return sessionKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *SessionRepoImpl) CreateSession(ctx context.Context, session *domain.ScanSession) (*domain.ScanSession, error) {
	id, err := r.client.Incr(ctx, sessionSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate session id: %w", err)
	}
	created := session.Clone()
	created.ID = id

	raw, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, r.key(id), raw, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return created, nil
}

func (r *SessionRepoImpl) GetSession(ctx context.Context, id int64) (*domain.ScanSession, error) {
	return r.load(ctx, r.client, id)
}

func (r *SessionRepoImpl) UpdateSession(ctx context.Context, id int64, update domain.SessionUpdate) (*domain.ScanSession, error) {
	key := r.key(id)
	var result *domain.ScanSession

	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.ApplyUpdate(s, update); err != nil {
			return err
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update session %d: too many concurrent writers", id)
}

func (r *SessionRepoImpl) load(ctx context.Context, c redis.Cmdable, id int64) (*domain.ScanSession, error) {
	raw, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s domain.ScanSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", id, err)
	}
	if s.Progress == nil {
		s.Progress = make(map[int64]domain.SchoolProgress)
	}
	return &s, nil
}
