package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Job represents a unit of work tracked by the queue
type Job struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	State     JobState               `json:"state"`
	Priority  int                    `json:"priority"`
	Attempts  int                    `json:"attempts"`
	Delay     int64                  `json:"delay,omitempty"` // milliseconds
	Data      map[string]interface{} `json:"data"`
	Output    interface{}            `json:"output,omitempty"` // written by workers
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	PromoteAt *time.Time             `json:"promoteAt,omitempty"`
}

// NewJob builds an unsaved job. ID, priority and attempts are filled in by the
// store on first save.
func NewJob(jobType string, data map[string]interface{}) *Job {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Job{
		Type:  jobType,
		State: JobStateInactive,
		Data:  data,
	}
}

// View returns a copy of the job with the output removed.
func (j *Job) View() *Job {
	cp := *j
	cp.Output = nil
	return &cp
}

// DelayDuration returns the configured delay as a time.Duration.
func (j *Job) DelayDuration() time.Duration {
	return time.Duration(j.Delay) * time.Millisecond
}

// Range is an inclusive pair of positional bounds.
type Range struct {
	From int64
	To   int64
}

// ParseRange parses "from..to" where both bounds are base-10 integers.
func ParseRange(s string) (Range, error) {
	from, to, ok := strings.Cut(s, "..")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	f, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range start %q", from)
	}
	t, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range end %q", to)
	}
	return Range{From: f, To: t}, nil
}

// Link is a hypermedia reference in a response body.
type Link struct {
	Href string `json:"href"`
}

// CreateJobResponse is returned when a job is accepted
type CreateJobResponse struct {
	State   JobState          `json:"state"`
	Message string            `json:"message"`
	ID      string            `json:"id"`
	Links   []map[string]Link `json:"_links"`
}

// MessageResponse acknowledges a mutation
type MessageResponse struct {
	Message string `json:"message"`
}

// Stats metric names
const (
	StatInactiveCount = "inactiveCount"
	StatCompleteCount = "completeCount"
	StatActiveCount   = "activeCount"
	StatFailedCount   = "failedCount"
	StatDelayedCount  = "delayedCount"
	StatWorkTime      = "workTime"
)
