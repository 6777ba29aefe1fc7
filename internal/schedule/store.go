package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fireFunc is the timer callback. gen identifies the arming it belongs to.
type fireFunc func(id string, gen uint64)

type entry struct {
	desc  Descriptor
	seq   uint64 // insertion order
	state State

	// gen changes on every arming; a timer callback whose gen no longer
	// matches is stale and must not fire.
	gen      uint64
	timer    *time.Timer
	nextFire time.Time

	fires     int
	failures  int
	lastFired time.Time
	lastErr   string
}

// Store is the registry of pending descriptors.
//
// It is constructed explicitly and shared by the engine and its callers.
// A single mutex guards every mutation, including timer arming, so a
// descriptor never owns more than one live timer.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	gen     uint64
	stopped bool

	inflight sync.WaitGroup
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Len returns the number of stored descriptors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Contains reports whether a descriptor with the given ID is stored.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// insertAndArm adds d and arms its first timer in one critical section.
func (s *Store) insertAndArm(d Descriptor, delay time.Duration, now time.Time, fire fireFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrEngineStopped
	}
	if _, ok := s.entries[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}

	s.seq++
	e := &entry{desc: d.Clone(), seq: s.seq}
	s.entries[d.ID] = e
	s.armLocked(e, delay, now, fire)
	return nil
}

func (s *Store) armLocked(e *entry, delay time.Duration, now time.Time, fire fireFunc) {
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	id := e.desc.ID

	e.gen = gen
	e.state = StateArmed
	e.nextFire = now.Add(delay)
	// The callback blocks on s.mu until this critical section ends, so the
	// timer is always recorded before it can be observed firing.
	e.timer = time.AfterFunc(delay, func() { fire(id, gen) })
}

// beginFire moves an armed descriptor to Firing. It returns false for stale
// callbacks, cancelled descriptors and after stop.
func (s *Store) beginFire(id string, gen uint64) (Descriptor, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.stopped || e.gen != gen || e.state != StateArmed {
		return Descriptor{}, time.Time{}, false
	}
	e.state = StateFiring
	e.timer = nil
	s.inflight.Add(1)
	return e.desc.Clone(), e.nextFire, true
}

// fireResult is what the engine learned from one invocation.
type fireResult struct {
	firedAt time.Time
	err     error
}

// finishFire records the outcome and either removes the descriptor
// (one-shot, or cancelled while firing) or re-arms it with nextDelay.
// It returns the next fire time, zero when the descriptor is gone or paused.
func (s *Store) finishFire(id string, gen uint64, res fireResult, now time.Time,
	nextDelay func(Descriptor) time.Duration, fire fireFunc) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.inflight.Done()

	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		// Cancelled while firing.
		return time.Time{}
	}

	e.fires++
	e.lastFired = res.firedAt
	if res.err != nil {
		e.failures++
		e.lastErr = res.err.Error()
	} else {
		e.lastErr = ""
	}

	if !e.desc.Recurring {
		delete(s.entries, id)
		return time.Time{}
	}
	if s.stopped {
		e.state = StatePaused
		return time.Time{}
	}

	s.armLocked(e, nextDelay(e.desc), now, fire)
	return e.nextFire
}

// remove deletes a descriptor, stopping its timer if armed. It reports
// whether the descriptor existed.
func (s *Store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(s.entries, id)
	return true
}

// get returns a view of one descriptor.
func (s *Store) get(id string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return View{}, false
	}
	return e.view(), true
}

// list returns views in registration order. An empty serial matches all.
func (s *Store) list(serial string) []View {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedLocked()
	views := make([]View, 0, len(ordered))
	for _, e := range ordered {
		if serial == "" || e.desc.DeviceSerial == serial {
			views = append(views, e.view())
		}
	}
	return views
}

// snapshot returns copies of every descriptor in registration order.
func (s *Store) snapshot() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedLocked()
	descs := make([]Descriptor, 0, len(ordered))
	for _, e := range ordered {
		descs = append(descs, e.desc.Clone())
	}
	return descs
}

func (s *Store) orderedLocked() []*entry {
	ordered := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}

// stop disarms every timer and refuses further arming. Entries stay in the
// store so they can be snapshotted.
func (s *Store) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		if e.state == StateArmed {
			e.state = StatePaused
		}
	}
}

// wait blocks until in-flight fires finish or ctx is done.
func (s *Store) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) view() View {
	v := View{
		Descriptor: e.desc.Clone(),
		State:      e.state,
		Fires:      e.fires,
		Failures:   e.failures,
		LastError:  e.lastErr,
	}
	if e.state == StateArmed || e.state == StateFiring {
		v.NextFire = e.nextFire
	}
	if !e.lastFired.IsZero() {
		lf := e.lastFired
		v.LastFired = &lf
	}
	return v
}
