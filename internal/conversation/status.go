// ABOUTME: Response bookkeeping for one conversation phase
// ABOUTME: Tracks outstanding versus responded contributors and flags unexpected responses

package conversation

import (
	"fmt"
	"slices"
)

// UnexpectedResponseError reports a response from a contributor that is not
// outstanding: a duplicate delivery, a late response, or a contributor that
// was never asked.
type UnexpectedResponseError struct {
	ContributorID string
	Reason        string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %s", e.ContributorID, e.Reason)
}

// ResponseStatus keeps two disjoint sets over the expected contributors.
// A contributor moves from outstanding to responded at most once.
// It is not safe for concurrent use; the owning conversation serializes access.
type ResponseStatus struct {
	expected    map[string]struct{}
	outstanding map[string]struct{}
	responded   map[string]struct{}
}

// NewResponseStatus creates a status where every expected contributor is outstanding.
func NewResponseStatus(expected []string) *ResponseStatus {
	s := &ResponseStatus{
		expected:    make(map[string]struct{}, len(expected)),
		outstanding: make(map[string]struct{}, len(expected)),
		responded:   make(map[string]struct{}, len(expected)),
	}
	for _, id := range expected {
		s.expected[id] = struct{}{}
		s.outstanding[id] = struct{}{}
	}
	return s
}

// ResponseReceived marks contributorID as responded. It returns an
// *UnexpectedResponseError and leaves the sets untouched when the contributor
// is not outstanding.
func (s *ResponseStatus) ResponseReceived(contributorID string) error {
	if _, ok := s.outstanding[contributorID]; ok {
		delete(s.outstanding, contributorID)
		s.responded[contributorID] = struct{}{}
		return nil
	}
	if _, ok := s.responded[contributorID]; ok {
		return &UnexpectedResponseError{ContributorID: contributorID, Reason: "already responded"}
	}
	return &UnexpectedResponseError{ContributorID: contributorID, Reason: "not an expected contributor"}
}

// IsExpected reports whether contributorID belongs to the tracked set.
func (s *ResponseStatus) IsExpected(contributorID string) bool {
	_, ok := s.expected[contributorID]
	return ok
}

// IsOutstanding reports whether contributorID has yet to respond.
func (s *ResponseStatus) IsOutstanding(contributorID string) bool {
	_, ok := s.outstanding[contributorID]
	return ok
}

// HaveAllResponded reports whether no contributor is outstanding.
func (s *ResponseStatus) HaveAllResponded() bool {
	return len(s.outstanding) == 0
}

// Outstanding returns the sorted IDs that have not responded.
func (s *ResponseStatus) Outstanding() []string {
	return sortedKeys(s.outstanding)
}

// Responded returns the sorted IDs that have responded.
func (s *ResponseStatus) Responded() []string {
	return sortedKeys(s.responded)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
