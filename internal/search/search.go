// Package search maintains a word index over job contents and answers
// free-text queries with matching job ids.
package search

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Index is the search collaborator used by the job control layer.
type Index interface {
	Index(ctx context.Context, id, text string) error
	Remove(ctx context.Context, id string) error
	Query(ctx context.Context, text string) ([]string, error)
}

// Words splits text into lower-cased alphanumeric tokens without duplicates.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		words = append(words, f)
	}
	return words
}

// Document renders a job type and payload into the text that gets indexed.
func Document(jobType string, data map[string]interface{}) string {
	b, err := json.Marshal(data)
	if err != nil {
		return jobType
	}
	return jobType + " " + string(b)
}

// sortIDs orders numeric ids numerically and anything else lexically.
func sortIDs(ids []string) {
	sort.Slice(ids, func(a, b int) bool {
		ai, aerr := strconv.ParseInt(ids[a], 10, 64)
		bi, berr := strconv.ParseInt(ids[b], 10, 64)
		if aerr == nil && berr == nil {
			return ai < bi
		}
		return ids[a] < ids[b]
	})
}

var _ Index = (*MemoryIndex)(nil)

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	mu    sync.RWMutex
	words map[string]map[string]struct{}
	docs  map[string][]string
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		words: make(map[string]map[string]struct{}),
		docs:  make(map[string][]string),
	}
}

func (m *MemoryIndex) Index(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(id)
	words := Words(text)
	for _, w := range words {
		if m.words[w] == nil {
			m.words[w] = make(map[string]struct{})
		}
		m.words[w][id] = struct{}{}
	}
	m.docs[id] = words
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *MemoryIndex) removeLocked(id string) {
	for _, w := range m.docs[id] {
		delete(m.words[w], id)
		if len(m.words[w]) == 0 {
			delete(m.words, w)
		}
	}
	delete(m.docs, id)
}

func (m *MemoryIndex) Query(_ context.Context, text string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	words := Words(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	ids := []string{}
	for id := range m.words[words[0]] {
		match := true
		for _, w := range words[1:] {
			if _, ok := m.words[w][id]; !ok {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}
