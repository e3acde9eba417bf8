// Package schema validates job payloads against per-type rule sets.
//
// Rules map payload field names to go-playground/validator tags, for example
//
//	{"to": "required,email", "subject": "required,max=200"}
//
// A nested map of rules validates a nested payload object.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownType is returned when no schema is registered for a job type.
var ErrUnknownType = errors.New("must provide a valid job type")

// Rules maps field names to validator tags or nested Rules.
type Rules map[string]interface{}

// Verdict is the outcome of validating one payload.
type Verdict struct {
	Valid  bool
	Errors []string
}

// ValidationError wraps a failed Verdict so it can travel as an error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "input parameters could not be validated: " + strings.Join(e.Errors, "; ")
}

// Validator holds the registered schemas.
type Validator struct {
	validate *validator.Validate

	mu    sync.RWMutex
	rules map[string]Rules
}

// New returns a Validator without any schemas.
func New(v *validator.Validate) *Validator {
	if v == nil {
		v = validator.New()
	}
	return &Validator{
		validate: v,
		rules:    make(map[string]Rules),
	}
}

// Register installs (or replaces) the rules for a job type.
func (s *Validator) Register(jobType string, rules Rules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[jobType] = rules
}

// Types returns the registered job types in sorted order.
func (s *Validator) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.rules))
	for t := range s.rules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// LoadFile registers every schema in a JSON document of the form
// {"<type>": {<rules>}, ...}.
func (s *Validator) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schemas: %w", err)
	}
	var doc map[string]Rules
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse schemas: %w", err)
	}
	for jobType, rules := range doc {
		s.Register(jobType, rules)
	}
	return nil
}

// Validate checks payload against the schema registered for jobType.
func (s *Validator) Validate(ctx context.Context, jobType string, payload map[string]interface{}) (Verdict, error) {
	s.mu.RLock()
	rules, ok := s.rules[jobType]
	s.mu.RUnlock()
	if !ok || jobType == "" {
		return Verdict{}, ErrUnknownType
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}

	errs := s.validate.ValidateMapCtx(ctx, payload, map[string]interface{}(normalize(rules)))
	if len(errs) == 0 {
		return Verdict{Valid: true}, nil
	}

	var msgs []string
	flatten("", errs, &msgs)
	sort.Strings(msgs)
	return Verdict{Valid: false, Errors: msgs}, nil
}

// normalize converts nested Rules into the plain maps ValidateMap dives into.
func normalize(rules Rules) map[string]interface{} {
	out := make(map[string]interface{}, len(rules))
	for field, rule := range rules {
		switch r := rule.(type) {
		case Rules:
			out[field] = normalize(r)
		case map[string]interface{}:
			out[field] = normalize(Rules(r))
		default:
			out[field] = rule
		}
	}
	return out
}

func flatten(prefix string, errs map[string]interface{}, msgs *[]string) {
	for field, e := range errs {
		path := field
		if prefix != "" {
			path = prefix + "." + field
		}

		switch v := e.(type) {
		case map[string]interface{}:
			flatten(path, v, msgs)
		case validator.ValidationErrors:
			for _, fe := range v {
				*msgs = append(*msgs, describe(path, fe))
			}
		case error:
			*msgs = append(*msgs, fmt.Sprintf("%s: %s", path, v.Error()))
		}
	}
}

func describe(path string, fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed on the '%s=%s' rule", path, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed on the '%s' rule", path, fe.Tag())
}
