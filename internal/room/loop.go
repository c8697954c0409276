package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// inboxSize bounds queued work per room before producers block.
const inboxSize = 256

// Loop owns a Room's goroutine. Commands, simulation ticks, snapshot flushes
// and reconnection expiries all run sequentially on it.
//
// Invariant: no two room operations ever run concurrently.
type Loop struct {
	room     *Room
	inbox    chan func(*Room)
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	sim      time.Duration
	patch    time.Duration
	logger   *zap.Logger
}

// NewLoop creates a stopped loop with the given cadences.
//
// Precondition: sim > 0; patch > 0; logger non-nil.
func NewLoop(sim, patch time.Duration, logger *zap.Logger) *Loop {
	if sim <= 0 || patch <= 0 {
		panic("room.NewLoop: intervals must be > 0")
	}
	return &Loop{
		inbox:  make(chan func(*Room), inboxSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		sim:    sim,
		patch:  patch,
		logger: logger,
	}
}

// Scheduler returns a Scheduler whose callbacks are posted onto this loop.
func (l *Loop) Scheduler() Scheduler {
	return loopScheduler{loop: l}
}

// Start begins processing for r.
//
// Precondition: Start is called exactly once.
func (l *Loop) Start(r *Room) {
	l.room = r
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	simTicker := time.NewTicker(l.sim)
	defer simTicker.Stop()
	patchTicker := time.NewTicker(l.patch)
	defer patchTicker.Stop()

	last := time.Now()
	for {
		select {
		case <-l.quit:
			l.room.Dispose()
			return
		case fn := <-l.inbox:
			select {
			case <-l.quit:
				l.room.Dispose()
				return
			default:
			}
			fn(l.room)
		case now := <-simTicker.C:
			elapsed := now.Sub(last)
			last = now
			l.room.Tick(elapsed)
		case <-patchTicker.C:
			l.room.FlushPatch()
		}
	}
}

// Post queues fn to run on the room goroutine.
//
// Postcondition: Returns ErrRoomClosed if the loop has been stopped.
func (l *Loop) Post(fn func(*Room)) error {
	select {
	case <-l.quit:
		return ErrRoomClosed
	default:
	}
	select {
	case l.inbox <- fn:
		return nil
	case <-l.quit:
		return ErrRoomClosed
	}
}

// Do runs fn on the room goroutine and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(*Room) error) error {
	result := make(chan error, 1)
	if err := l.Post(func(r *Room) { result <- fn(r) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrRoomClosed
	}
}

// Stop signals the loop to dispose the room and exit. Safe to call from the
// room goroutine and more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

type loopScheduler struct {
	loop *Loop
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		if err := s.loop.Post(func(*Room) { fn() }); err != nil {
			s.loop.logger.Debug("dropping timer callback for closed room")
		}
	})
}
