package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Job states
type JobState string

const (
	JobStateInactive JobState = "inactive"
	JobStateActive   JobState = "active"
	JobStateComplete JobState = "complete"
	JobStateFailed   JobState = "failed"
	JobStateDelayed  JobState = "delayed"
)

var ValidJobStates = []JobState{
	JobStateInactive, JobStateActive, JobStateComplete,
	JobStateFailed, JobStateDelayed,
}

// ParseState returns the JobState named by s, or an error when s is not one
// of the five recognized states.
func ParseState(s string) (JobState, error) {
	for _, st := range ValidJobStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid state %q", s)
}

// Priorities. Lower values are dequeued first.
const (
	PriorityLow      = 10
	PriorityNormal   = 0
	PriorityMedium   = -5
	PriorityHigh     = -10
	PriorityCritical = -15
)

var priorityNames = map[string]int{
	"low":      PriorityLow,
	"normal":   PriorityNormal,
	"medium":   PriorityMedium,
	"high":     PriorityHigh,
	"critical": PriorityCritical,
}

// ParsePriority accepts either a named priority (low, normal, medium, high,
// critical) or a base-10 integer.
func ParsePriority(s string) (int, error) {
	if p, ok := priorityNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

// Range orderings
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder defaults to ascending when s is empty.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", string(OrderAsc):
		return OrderAsc, nil
	case string(OrderDesc):
		return OrderDesc, nil
	}
	return "", fmt.Errorf("invalid order %q", s)
}
