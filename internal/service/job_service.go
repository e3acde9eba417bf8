package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/makeasinger/jobctl/internal/aggregate"
	"github.com/makeasinger/jobctl/internal/client"
	"github.com/makeasinger/jobctl/internal/model"
	"github.com/makeasinger/jobctl/internal/output"
	"github.com/makeasinger/jobctl/internal/schema"
	"github.com/makeasinger/jobctl/internal/search"
	"github.com/makeasinger/jobctl/internal/store"
)

// Input errors. Each is detected before any collaborator is called.
var (
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidOption = errors.New("invalid job option")
)

// Validator checks a payload against the schema registered for a job type.
type Validator interface {
	Validate(ctx context.Context, jobType string, payload map[string]interface{}) (schema.Verdict, error)
}

// Dispatcher schedules the promotion of delayed jobs.
type Dispatcher interface {
	SchedulePromotion(ctx context.Context, job *model.Job) error
	Close() error
}

// Notifier is told about job changes after they are persisted.
type Notifier interface {
	JobChanged(job *model.Job)
	JobRemoved(id string)
}

// Defaults seed every new job before its options are applied.
type Defaults struct {
	Priority int
	Attempts int
}

// DefaultJobDefaults matches a freshly created queue job.
var DefaultJobDefaults = Defaults{Priority: model.PriorityNormal, Attempts: 1}

// Deps are the collaborators of a JobService. Store and Validator are
// required; the rest may be nil. Files defaults to the local filesystem and
// a zero Defaults to DefaultJobDefaults.
type Deps struct {
	Defaults   Defaults
	Store      store.JobStore
	Index      search.Index
	Validator  Validator
	Files      client.FileServer
	Dispatcher Dispatcher
	Notifier   Notifier
}

// JobService implements the job control operations
type JobService struct {
	defaults   Defaults
	store      store.JobStore
	index      search.Index
	validator  Validator
	files      client.FileServer
	dispatcher Dispatcher
	notifier   Notifier
}

func NewJobService(deps Deps) (*JobService, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if deps.Files == nil {
		deps.Files = client.LocalFS{}
	}
	if deps.Defaults == (Defaults{}) {
		deps.Defaults = DefaultJobDefaults
	}
	return &JobService{
		defaults:   deps.Defaults,
		store:      deps.Store,
		index:      deps.Index,
		validator:  deps.Validator,
		files:      deps.Files,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
	}, nil
}

// Close releases the dispatcher and the store.
func (s *JobService) Close() error {
	var errs []error
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Ping checks the store connection
func (s *JobService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stats reads every queue counter concurrently and reports them together.
func (s *JobService) Stats(ctx context.Context) (map[string]int64, error) {
	count := func(state model.JobState) aggregate.SourceFunc[int64] {
		return func(ctx context.Context) (int64, error) {
			return s.store.Count(ctx, state)
		}
	}

	return aggregate.New[int64]().
		Source(model.StatInactiveCount, count(model.JobStateInactive)).
		Source(model.StatCompleteCount, count(model.JobStateComplete)).
		Source(model.StatActiveCount, count(model.JobStateActive)).
		Source(model.StatFailedCount, count(model.JobStateFailed)).
		Source(model.StatDelayedCount, count(model.JobStateDelayed)).
		Source(model.StatWorkTime, s.store.WorkTime).
		Wait(ctx)
}

// Types lists every job type the store has seen
func (s *JobService) Types(ctx context.Context) ([]string, error) {
	return s.store.Types(ctx)
}

func (s *JobService) RangeAll(ctx context.Context, r model.Range, order model.Order) ([]*model.Job, error) {
	return s.rangeJobs(ctx, store.RangeQuery{From: r.From, To: r.To, Order: order})
}

func (s *JobService) RangeByState(ctx context.Context, state model.JobState, r model.Range, order model.Order) ([]*model.Job, error) {
	return s.rangeJobs(ctx, store.RangeQuery{State: state, From: r.From, To: r.To, Order: order})
}

func (s *JobService) RangeByType(ctx context.Context, jobType string, state model.JobState, r model.Range, order model.Order) ([]*model.Job, error) {
	return s.rangeJobs(ctx, store.RangeQuery{Type: jobType, State: state, From: r.From, To: r.To, Order: order})
}

func (s *JobService) rangeJobs(ctx context.Context, q store.RangeQuery) ([]*model.Job, error) {
	jobs, err := s.store.Range(ctx, q)
	if err != nil {
		return nil, err
	}
	views := make([]*model.Job, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	return views, nil
}

// Get returns the job without its output.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.View(), nil
}

// OutputResult is a resolved job output. Body is set only for streams and
// must be closed by the caller.
type OutputResult struct {
	output.Resolution
	Body io.ReadCloser
}

// Output resolves how the output of a job is delivered. Jobs that are not
// complete resolve to an empty inline value.
func (s *JobService) Output(ctx context.Context, id string) (*OutputResult, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var out interface{}
	if job.State == model.JobStateComplete {
		out = job.Output
	}
	res := &OutputResult{Resolution: output.Resolve(out)}

	if res.Kind == output.Stream {
		body, err := s.files.Open(ctx, res.File)
		if err != nil {
			return nil, err
		}
		res.Body = body
	}
	return res, nil
}

// Create validates a request body, builds a job from it and persists it.
// The body is stored verbatim as the job data.
func (s *JobService) Create(ctx context.Context, body map[string]interface{}) (*model.Job, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	jobType, _ := body["type"].(string)

	verdict, err := s.validator.Validate(ctx, jobType, body)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return nil, &schema.ValidationError{Errors: verdict.Errors}
	}

	job := model.NewJob(jobType, body)
	job.Priority = s.defaults.Priority
	job.Attempts = s.defaults.Attempts
	if opts, ok := body["options"].(map[string]interface{}); ok {
		if err := applyOptions(job, opts); err != nil {
			return nil, err
		}
	}
	if job.Delay > 0 {
		job.State = model.JobStateDelayed
		promoteAt := time.Now().UTC().Add(job.DelayDuration())
		job.PromoteAt = &promoteAt
	}

	if err := s.store.Save(ctx, job); err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Index(ctx, job.ID, search.Document(job.Type, job.Data)); err != nil {
			log.Printf("Failed to index job %s: %v", job.ID, err)
		}
	}
	if job.State == model.JobStateDelayed && s.dispatcher != nil {
		if err := s.dispatcher.SchedulePromotion(ctx, job); err != nil {
			log.Printf("Failed to schedule promotion of job %s: %v", job.ID, err)
		}
	}
	s.changed(job)

	return job, nil
}

// Remove deletes a job in any state
func (s *JobService) Remove(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			log.Printf("Failed to unindex job %s: %v", id, err)
		}
	}
	if s.notifier != nil {
		s.notifier.JobRemoved(id)
	}
	return nil
}

// UpdatePriority sets the priority of an existing job
func (s *JobService) UpdatePriority(ctx context.Context, id string, priority int) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Priority = priority
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	s.changed(job)
	return nil
}

// UpdateState moves a job to any of the recognized states. Whether the
// transition is reachable from the current state is left to the workers.
func (s *JobService) UpdateState(ctx context.Context, id string, state model.JobState) error {
	if _, err := model.ParseState(string(state)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	job.State = state
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	s.changed(job)
	return nil
}

// Search returns the ids of jobs matching a free-text query
func (s *JobService) Search(ctx context.Context, query string) ([]string, error) {
	if s.index == nil {
		return []string{}, nil
	}
	return s.index.Query(ctx, query)
}

// Log returns the worker log lines of a job
func (s *JobService) Log(ctx context.Context, id string) ([]string, error) {
	return s.store.Log(ctx, id)
}

// Promote moves a delayed job to inactive once its delay has elapsed. Jobs in
// any other state are left alone.
func (s *JobService) Promote(ctx context.Context, id string) (bool, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job.State != model.JobStateDelayed {
		return false, nil
	}
	job.State = model.JobStateInactive
	job.PromoteAt = nil
	if err := s.store.Save(ctx, job); err != nil {
		return false, err
	}
	s.changed(job)
	return true, nil
}

func (s *JobService) changed(job *model.Job) {
	if s.notifier != nil {
		s.notifier.JobChanged(job.View())
	}
}

// applyOptions copies attempts, priority and delay onto the job. An option
// that is absent or falsy (zero, empty string, false) is skipped and the
// seeded default stays.
func applyOptions(job *model.Job, opts map[string]interface{}) error {
	if v := opts["attempts"]; truthy(v) {
		n, err := toInt(v)
		if err != nil {
			return fmt.Errorf("%w: attempts %v", ErrInvalidOption, v)
		}
		job.Attempts = n
	}
	if v := opts["priority"]; truthy(v) {
		p, err := toPriority(v)
		if err != nil {
			return fmt.Errorf("%w: priority %v", ErrInvalidOption, v)
		}
		job.Priority = p
	}
	if v := opts["delay"]; truthy(v) {
		d, err := toDelay(v)
		if err != nil {
			return fmt.Errorf("%w: delay %v", ErrInvalidOption, v)
		}
		job.Delay = d.Milliseconds()
	}
	return nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func toPriority(v interface{}) (int, error) {
	if s, ok := v.(string); ok {
		return model.ParsePriority(strings.TrimSpace(s))
	}
	return toInt(v)
}

// toDelay reads milliseconds from a number or numeric string, or a Go
// duration string such as "90s".
func toDelay(v interface{}) (time.Duration, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			if ms < 0 {
				return 0, fmt.Errorf("negative delay %d", ms)
			}
			return time.Duration(ms) * time.Millisecond, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("negative delay %s", s)
		}
		return d, nil
	}
	ms, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative delay %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
