// Package memory is the in-process session store. Sessions live here for
// the lifetime of the process; every mutation goes through the store, which
// serializes writes per session with a coarse lock and keeps the
// turnCount == len(turns) invariant after every mutation.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edusim/classsim/pkg/models"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = fmt.Errorf("session not found")

// ErrSessionExists is returned when creating a session with a used id.
var ErrSessionExists = fmt.Errorf("session already exists")

// StatePatch is a partial update to an agent's state. Score fields are
// deltas; pointer fields replace the stored value when set.
type StatePatch struct {
	AttentivenessDelta     float64
	BehaviorDelta          float64
	ComprehensionDelta     float64
	LiveAction             *models.LiveAction
	DistractionStreak      *int
	PostPraiseFatigueTurns *int
	PostPraiseDecayBoost   *float64
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// Store holds all live sessions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// CreateSession registers a new session. The store takes ownership of the
// session value.
func (s *Store) CreateSession(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[session.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, session.ID)
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	session.Metrics.TurnCount = len(session.Turns)
	s.entries[session.ID] = &entry{session: session}
	return nil
}

func (s *Store) entryFor(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// With runs fn with exclusive access to the session. All reads and writes
// inside the orchestrator pipeline go through this; the per-session lock is
// the shared-resource policy of the whole system.
func (s *Store) With(id string, fn func(*models.Session) error) error {
	e, err := s.entryFor(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.session); err != nil {
		return err
	}
	e.session.UpdatedAt = time.Now().UTC()
	e.session.Metrics.TurnCount = len(e.session.Turns)
	return nil
}

// List returns a list projection of every live session, newest first.
func (s *Store) List() []models.SessionListItem {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	items := make([]models.SessionListItem, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		items = append(items, models.SessionListItem{
			ID:        e.session.ID,
			Mode:      e.session.Mode,
			Channel:   e.session.Channel,
			Topic:     e.session.Topic,
			TurnCount: len(e.session.Turns),
			UpdatedAt: e.session.UpdatedAt,
		})
		e.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items
}

// Has reports whether the session exists.
func (s *Store) Has(id string) bool {
	_, err := s.entryFor(id)
	return err == nil
}

// AppendTurn appends a turn to the transcript.
func (s *Store) AppendTurn(id string, turn models.Turn) error {
	return s.With(id, func(session *models.Session) error {
		session.Turns = append(session.Turns, turn)
		return nil
	})
}

// RollbackTurn removes the transcript tail if and only if it is the given
// turn. This is the single documented rollback: an early-aborted request
// turn is removed before anything else was committed for it.
func (s *Store) RollbackTurn(id, turnID string) error {
	return s.With(id, func(session *models.Session) error {
		return RollbackTailTurn(session, turnID)
	})
}

// RollbackTailTurn removes the last turn when it matches turnID. Exposed for
// callers already holding the session via With.
func RollbackTailTurn(session *models.Session, turnID string) error {
	n := len(session.Turns)
	if n == 0 || session.Turns[n-1].ID != turnID {
		return fmt.Errorf("rollback: turn %s is not the transcript tail", turnID)
	}
	session.Turns = session.Turns[:n-1]
	return nil
}

// AppendEvents appends events to the session event log.
func (s *Store) AppendEvents(id string, events []models.SessionEvent) error {
	return s.With(id, func(session *models.Session) error {
		session.Events = append(session.Events, events...)
		return nil
	})
}

// UpdateAgentState applies a clamped patch to one agent's state.
func (s *Store) UpdateAgentState(id, agentID string, patch StatePatch) error {
	return s.With(id, func(session *models.Session) error {
		agent := session.Agent(agentID)
		if agent == nil {
			return fmt.Errorf("agent not found: %s", agentID)
		}
		ApplyStatePatch(agent, patch)
		return nil
	})
}

// ApplyStatePatch merges a patch into the agent state, clamping scores to
// [floor, 10] with one-decimal rounding. Exposed for callers already holding
// the session via With.
func ApplyStatePatch(agent *models.AgentProfile, patch StatePatch) {
	attFloor, behFloor, compFloor := models.ScoreFloors(agent.Kind)
	st := &agent.State
	st.Attentiveness = models.ClampScore(st.Attentiveness+patch.AttentivenessDelta, attFloor)
	st.Behavior = models.ClampScore(st.Behavior+patch.BehaviorDelta, behFloor)
	st.Comprehension = models.ClampScore(st.Comprehension+patch.ComprehensionDelta, compFloor)
	if patch.LiveAction != nil {
		st.LiveAction = patch.LiveAction
	}
	if patch.DistractionStreak != nil {
		st.DistractionStreak = *patch.DistractionStreak
	}
	if patch.PostPraiseFatigueTurns != nil {
		st.PostPraiseFatigueTurns = *patch.PostPraiseFatigueTurns
	}
	if patch.PostPraiseDecayBoost != nil {
		st.PostPraiseDecayBoost = *patch.PostPraiseDecayBoost
	}
}

// UpdateMetrics replaces the derived metric fields (turnCount stays owned by
// the store).
func (s *Store) UpdateMetrics(id string, patch models.SessionMetrics) error {
	return s.With(id, func(session *models.Session) error {
		patch.TurnCount = len(session.Turns)
		session.Metrics = patch
		return nil
	})
}

// UpdateRuntime mutates the classroom runtime copy-on-write.
func (s *Store) UpdateRuntime(id string, mutate func(*models.ClassroomRuntime)) error {
	return s.With(id, func(session *models.Session) error {
		if session.Runtime == nil {
			return fmt.Errorf("session %s has no classroom runtime", id)
		}
		next := *session.Runtime
		mutate(&next)
		session.Runtime = &next
		return nil
	})
}

// PushSupervisorHint stores the single-slot hint; a newer hint overwrites.
func (s *Store) PushSupervisorHint(id, hint string) error {
	return s.With(id, func(session *models.Session) error {
		session.SupervisorHint = hint
		return nil
	})
}

// ConsumeSupervisorHint returns and clears the stored hint, if any.
func (s *Store) ConsumeSupervisorHint(id string) (string, bool, error) {
	var hint string
	var ok bool
	err := s.With(id, func(session *models.Session) error {
		hint, ok = session.SupervisorHint, session.SupervisorHint != ""
		session.SupervisorHint = ""
		return nil
	})
	return hint, ok, err
}
