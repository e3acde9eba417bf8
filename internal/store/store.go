// Package store persists jobs, their indices, logs and the aggregate
// counters the control plane reports.
package store

import (
	"context"
	"errors"

	"github.com/makeasinger/jobctl/internal/model"
)

// ErrJobNotFound is returned when no job exists for an id.
var ErrJobNotFound = errors.New("job not found")

// RangeQuery selects a positional window of jobs. Type requires State.
type RangeQuery struct {
	Type  string
	State model.JobState
	From  int64
	To    int64
	Order model.Order
}

// JobStore is the contract the job control layer needs from a backend.
//
// Save assigns an id on the first save of a job and keeps the state and type indices in step with the record. Range windows
// are inclusive positions over the id-ordered index of the selected scope;
// negative positions count from the end.
type JobStore interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	Save(ctx context.Context, job *model.Job) error
	Remove(ctx context.Context, id string) error
	Range(ctx context.Context, q RangeQuery) ([]*model.Job, error)

	Count(ctx context.Context, state model.JobState) (int64, error)
	WorkTime(ctx context.Context) (int64, error)
	AddWorkTime(ctx context.Context, ms int64) error
	Types(ctx context.Context) ([]string, error)

	Log(ctx context.Context, id string) ([]string, error)
	AppendLog(ctx context.Context, id, line string) error

	Ping(ctx context.Context) error
	Close() error
}

// window converts inclusive positional bounds into slice indices over a
// sequence of length n, using redis ZRANGE semantics.
func window(from, to int64, n int) (int, int, bool) {
	size := int64(n)
	if from < 0 {
		from += size
	}
	if to < 0 {
		to += size
	}
	if from < 0 {
		from = 0
	}
	if to >= size {
		to = size - 1
	}
	if size == 0 || from > to {
		return 0, 0, false
	}
	return int(from), int(to) + 1, true
}
