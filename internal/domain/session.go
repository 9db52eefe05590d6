package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStatusRegression  = errors.New("scan session status cannot move backwards")
	ErrCompletedOverflow = errors.New("completed schools would exceed total schools")
)

// SessionStatus is the lifecycle of a scan session: pending -> running -> completed.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionPending:
		return 0
	case SessionRunning:
		return 1
	case SessionCompleted:
		return 2
	}
	return -1
}

// SchoolStatus is the per-school sub-status inside a session.
type SchoolStatus string

const (
	SchoolPending   SchoolStatus = "pending"
	SchoolRunning   SchoolStatus = "running"
	SchoolCompleted SchoolStatus = "completed"
	SchoolError     SchoolStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s SchoolStatus) Terminal() bool {
	return s == SchoolCompleted || s == SchoolError
}

// SchoolProgress is one entry of a session's progress map.
type SchoolProgress struct {
	Status       SchoolStatus `json:"status"`
	TendersFound int          `json:"tendersFound"`
	Error        string       `json:"error,omitempty"`
}

// ScanSession tracks one orchestration run. Pollers must treat any status
// other than completed as non-final.
type ScanSession struct {
	ID               int64                    `json:"id"`
	Status           SessionStatus            `json:"status"`
	TotalSchools     int                      `json:"totalSchools"`
	CompletedSchools int                      `json:"completedSchools"`
	TotalTenders     int                      `json:"totalTenders"`
	Progress         map[int64]SchoolProgress `json:"progress"`
	StartedAt        time.Time                `json:"startedAt"`
	CompletedAt      *time.Time               `json:"completedAt"`
}

// SessionUpdate is a partial update. Zero values leave fields untouched;
// counters are deltas and progress entries are merged key by key.
type SessionUpdate struct {
	Status                *SessionStatus
	CompletedSchoolsDelta int
	TotalTendersDelta     int
	Progress              map[int64]SchoolProgress
	CompletedAt           *time.Time
}

// NewScanSession returns a running session for total schools.
func NewScanSession(total int, now time.Time) *ScanSession {
	return &ScanSession{
		Status:       SessionRunning,
		TotalSchools: total,
		Progress:     make(map[int64]SchoolProgress),
		StartedAt:    now,
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *ScanSession) Clone() *ScanSession {
	c := *s
	c.Progress = make(map[int64]SchoolProgress, len(s.Progress))
	for k, v := range s.Progress {
		c.Progress[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ApplyUpdate merges u into s in place. Every session store funnels writes
// through here so the invariants hold regardless of backend: counters never
// decrease, completed never exceeds total, status and terminal school
// entries never move backwards. On error s is left unchanged.
func ApplyUpdate(s *ScanSession, u SessionUpdate) error {
	if u.CompletedSchoolsDelta < 0 || u.TotalTendersDelta < 0 {
		return fmt.Errorf("negative counter delta: completed=%d tenders=%d", u.CompletedSchoolsDelta, u.TotalTendersDelta)
	}
	if s.CompletedSchools+u.CompletedSchoolsDelta > s.TotalSchools {
		return ErrCompletedOverflow
	}
	if u.Status != nil && u.Status.rank() < s.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, s.Status, *u.Status)
	}

	s.CompletedSchools += u.CompletedSchoolsDelta
	s.TotalTenders += u.TotalTendersDelta
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.CompletedAt != nil && s.CompletedAt == nil {
		t := *u.CompletedAt
		s.CompletedAt = &t
	}
	if len(u.Progress) > 0 && s.Progress == nil {
		s.Progress = make(map[int64]SchoolProgress, len(u.Progress))
	}
	for id, p := range u.Progress {
		if cur, ok := s.Progress[id]; ok && cur.Status.Terminal() {
			continue
		}
		s.Progress[id] = p
	}
	return nil
}

// StatusPtr is a convenience for building updates.
func StatusPtr(s SessionStatus) *SessionStatus { return &s }
