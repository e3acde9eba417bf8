package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/makeasinger/jobctl/internal/model"
)

var _ JobStore = (*MemoryStore)(nil)

// MemoryStore is an in-process JobStore. Safe for concurrent access.
// Intended for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	jobs     map[string]*model.Job
	logs     map[string][]string
	types    map[string]struct{}
	workTime int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*model.Job),
		logs:     make(map[string][]string),
		types:    make(map[string]struct{}),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(j), nil
}

func (m *MemoryStore) Save(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if job.ID == "" {
		m.nextID++
		job.ID = strconv.FormatInt(m.nextID, 10)
		initJob(job)
		job.CreatedAt = now
	} else if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	job.UpdatedAt = now

	m.jobs[job.ID] = copyJob(job)
	m.types[job.Type] = struct{}{}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.logs, id)
	return nil
}

func (m *MemoryStore) Range(_ context.Context, q RangeQuery) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*model.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if q.State != "" && j.State != q.State {
			continue
		}
		if q.Type != "" && j.Type != q.Type {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(a, b int) bool {
		if q.Order == model.OrderDesc {
			return idLess(matched[b].ID, matched[a].ID)
		}
		return idLess(matched[a].ID, matched[b].ID)
	})

	lo, hi, ok := window(q.From, q.To, len(matched))
	if !ok {
		return []*model.Job{}, nil
	}
	out := make([]*model.Job, 0, hi-lo)
	for _, j := range matched[lo:hi] {
		out = append(out, copyJob(j))
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, state model.JobState) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if j.State == state {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) WorkTime(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workTime, nil
}

func (m *MemoryStore) AddWorkTime(_ context.Context, ms int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workTime += ms
	return nil
}

func (m *MemoryStore) Types(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.types))
	for t := range m.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

func (m *MemoryStore) Log(_ context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string{}, m.logs[id]...), nil
}

func (m *MemoryStore) AppendLog(_ context.Context, id, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	m.logs[id] = append(m.logs[id], line)
	return nil
}

// Ping always succeeds for the memory store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

func initJob(job *model.Job) {
	if job.State == "" {
		job.State = model.JobStateInactive
	}
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	if j.Data != nil {
		cp.Data = make(map[string]interface{}, len(j.Data))
		for k, v := range j.Data {
			cp.Data[k] = v
		}
	}
	if j.PromoteAt != nil {
		t := *j.PromoteAt
		cp.PromoteAt = &t
	}
	return &cp
}

// idLess orders numeric ids numerically and anything else lexically.
func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
