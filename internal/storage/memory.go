package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	keep   int
	closed bool

	// persist runs under mu after changes were applied to st.
	persist func([]change) error
}

// NewMemory returns a process-local store. Nothing survives Close.
func NewMemory(cfg Config) Store {
	return newMemStore(cfg)
}

func newMemStore(cfg Config) *memStore {
	return &memStore{st: newState(), now: cfg.now(), keep: cfg.MaxLaunchesPerTask}
}

func (s *memStore) commit(changes ...change) error {
	for _, c := range changes {
		s.st.apply(c)
	}
	if s.persist == nil || len(changes) == 0 {
		return nil
	}
	return s.persist(changes)
}

func (s *memStore) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *memStore) LastLaunch(ctx context.Context, taskID int, taskType, name, description string) (*Launch, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	now := s.now()
	next := TaskRecord{ID: taskID, Type: taskType, Name: name, Description: description, LastActivity: now}
	cur, ok := s.st.Tasks[taskID]
	if !ok || !cur.sameIdentity(next) {
		return nil, s.commit(change{Task: &next})
	}
	if err := s.commit(change{Task: &next}); err != nil {
		return nil, err
	}
	h := s.st.history(taskID)
	if len(h) == 0 {
		return nil, nil
	}
	last := h[0]
	return &last, nil
}

func (s *memStore) StartNewLaunch(ctx context.Context, taskID int) (int64, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	l := Launch{ID: s.st.NextID + 1, TaskID: taskID, StartTime: s.now(), IsWorking: true}
	if err := s.commit(change{Launch: &l}); err != nil {
		return 0, err
	}
	if err := s.commit(s.st.prune(taskID, s.keep)...); err != nil {
		return 0, err
	}
	return l.ID, nil
}

// update loads launch id, lets fn mutate it and commits the result.
func (s *memStore) update(ctx context.Context, id int64, fn func(l *Launch)) (Launch, error) {
	if err := s.begin(ctx); err != nil {
		return Launch{}, err
	}
	defer s.mu.Unlock()

	l, ok := s.st.Launches[id]
	if !ok {
		return Launch{}, fmt.Errorf("%w: %d", ErrLaunchNotFound, id)
	}
	fn(&l)
	return l, s.commit(change{Launch: &l})
}

func (s *memStore) RestartExistingLaunch(ctx context.Context, id int64) (int64, error) {
	_, err := s.update(ctx, id, func(l *Launch) {
		l.StartTime = s.now()
		l.EndTime = nil
		l.IsWorking = true
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *memStore) CompleteLaunchSuccessfully(ctx context.Context, id int64) error {
	_, err := s.update(ctx, id, func(l *Launch) {
		l.EndTime = timePtr(s.now())
		l.IsWorking = false
		l.ErrorCount = 0
		l.ErrorText = ""
	})
	return err
}

func (s *memStore) CompleteLaunchUnsuccessfully(ctx context.Context, id int64, text string) (int, error) {
	l, err := s.update(ctx, id, func(l *Launch) {
		l.EndTime = timePtr(s.now())
		l.IsWorking = false
		l.ErrorCount++
		l.ErrorText = text
	})
	if err != nil {
		return 0, err
	}
	return l.ErrorCount, nil
}

func (s *memStore) ResetLock(ctx context.Context, id int64) error {
	_, err := s.update(ctx, id, func(l *Launch) {
		l.EndTime = timePtr(s.now())
		l.IsWorking = false
		l.ErrorCount++
		l.ErrorText = ResetLockText
	})
	return err
}

func (s *memStore) Tasks(ctx context.Context) ([]TaskRecord, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	out := make([]TaskRecord, 0, len(s.st.Tasks))
	for _, t := range s.st.Tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Launches(ctx context.Context, taskID int, limit int) ([]Launch, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	h := s.st.history(taskID)
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
