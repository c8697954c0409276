package room

import (
	"time"

	"go.uber.org/zap"
)

// DefaultReconnectGrace is how long a non-consented disconnect waits for the
// same session to come back before purging it.
const DefaultReconnectGrace = 10 * time.Second

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. Returns false if it already fired.
	Stop() bool
}

// Scheduler runs fn after d. Callbacks must be delivered on the room's own
// goroutine; Loop.Scheduler provides that guarantee.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Phase is a session's position in the reconnection state machine.
type Phase int

const (
	// PhaseConnected is the steady state; also the result of a successful reconnect.
	PhaseConnected Phase = iota
	// PhaseDisconnecting means a grace timer is running.
	PhaseDisconnecting
	// PhasePurged means the session's user and entities are gone.
	PhasePurged
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhasePurged:
		return "purged"
	default:
		return "unknown"
	}
}

type pendingWait struct {
	seq   uint64
	timer Timer
}

// Supervisor tracks disconnecting sessions and purges those that do not
// reconnect within the grace window.
//
// Not safe for concurrent use; owned by the room goroutine.
type Supervisor struct {
	grace   time.Duration
	sched   Scheduler
	pending map[string]*pendingWait
	seq     uint64
	purge   func(sessionID string)
	logger  *zap.Logger
}

// NewSupervisor creates a Supervisor that calls purge when a wait expires.
//
// Precondition: grace > 0; sched, purge and logger must be non-nil.
func NewSupervisor(grace time.Duration, sched Scheduler, purge func(sessionID string), logger *zap.Logger) *Supervisor {
	return &Supervisor{
		grace:   grace,
		sched:   sched,
		pending: make(map[string]*pendingWait),
		purge:   purge,
		logger:  logger,
	}
}

// Begin moves sessionID into PhaseDisconnecting and starts its grace timer.
// A wait already running for the session is replaced.
func (s *Supervisor) Begin(sessionID string) {
	if old, ok := s.pending[sessionID]; ok {
		old.timer.Stop()
	}
	s.seq++
	seq := s.seq
	w := &pendingWait{seq: seq}
	w.timer = s.sched.AfterFunc(s.grace, func() { s.expire(sessionID, seq) })
	s.pending[sessionID] = w
	s.logger.Info("awaiting reconnection",
		zap.String("session_id", sessionID),
		zap.Duration("grace", s.grace),
	)
}

// Resolve delivers a reconnection signal for sessionID.
//
// Postcondition: Returns true and cancels the timer when the session was
// disconnecting; returns false otherwise.
func (s *Supervisor) Resolve(sessionID string) bool {
	w, ok := s.pending[sessionID]
	if !ok {
		return false
	}
	w.timer.Stop()
	delete(s.pending, sessionID)
	s.logger.Info("session reconnected", zap.String("session_id", sessionID))
	return true
}

// Phase reports whether sessionID is currently waiting.
func (s *Supervisor) Phase(sessionID string) Phase {
	if _, ok := s.pending[sessionID]; ok {
		return PhaseDisconnecting
	}
	return PhaseConnected
}

// Len returns the number of pending waits.
func (s *Supervisor) Len() int {
	return len(s.pending)
}

// StopAll cancels every pending wait without purging.
func (s *Supervisor) StopAll() {
	for id, w := range s.pending {
		w.timer.Stop()
		delete(s.pending, id)
	}
}

func (s *Supervisor) expire(sessionID string, seq uint64) {
	w, ok := s.pending[sessionID]
	if !ok || w.seq != seq {
		return
	}
	delete(s.pending, sessionID)
	s.logger.Info("reconnection window expired", zap.String("session_id", sessionID))
	s.purge(sessionID)
}

// SystemScheduler schedules with time.AfterFunc. Callbacks run on timer
// goroutines, so it is only suitable when wrapped by Loop.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
