package oracle

import (
	"context"
	"sync"

	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// Mock is a test double for the Oracle interface. The engine scores
// matched dimensions concurrently, so call recording takes a lock.
type Mock struct {
	Tags     []string
	TagsErr  error
	Score    int
	ScoreErr error

	// Scores overrides Score per dimension id when non-nil.
	Scores map[string]int
	// ScoreErrs marks specific dimensions as failing.
	ScoreErrs map[string]error

	mu           sync.Mutex
	ExtractCalls []Event
	ScoreCalls   []string // dimension ids, in call order
}

// ExtractTags records the call and returns the canned tag list.
func (m *Mock) ExtractTags(_ context.Context, ev Event, maxTags int) ([]string, error) {
	m.mu.Lock()
	m.ExtractCalls = append(m.ExtractCalls, ev)
	m.mu.Unlock()
	if m.TagsErr != nil {
		return nil, m.TagsErr
	}
	tags := m.Tags
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags, nil
}

// ScoreDimension records the call and returns the canned score.
func (m *Mock) ScoreDimension(_ context.Context, dim registry.Dimension, _ Event, _ int) (int, error) {
	m.mu.Lock()
	m.ScoreCalls = append(m.ScoreCalls, dim.ID)
	m.mu.Unlock()
	if err, ok := m.ScoreErrs[dim.ID]; ok {
		return 0, err
	}
	if m.ScoreErr != nil {
		return 0, m.ScoreErr
	}
	if v, ok := m.Scores[dim.ID]; ok {
		return v, nil
	}
	return m.Score, nil
}
