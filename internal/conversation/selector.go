// ABOUTME: Contributor selection policies for the identify phase
// ABOUTME: Decides which identified pillars take part and when identification is done

package conversation

import (
	"maps"
	"slices"
	"time"
)

// Identification is one identify response as seen by a Selector.
type Identification struct {
	ContributorID string
	ReplyTo       string
	Positive      bool
	TimeToDeliver time.Duration
	Info          string
}

// Selector decides which contributors an operation is performed against.
//
// Process records an identify response; duplicates and responses from
// contributors outside the candidate set return an *UnexpectedResponseError
// and do not change the selector. Selected is only meaningful once the
// identify phase has ended, either because IsFinished returned true or
// because the identify timeout fired.
type Selector interface {
	Process(Identification) error
	IsFinished() bool
	Selected() map[string]string
	Outstanding() []string
	// RequiresAll reports whether every candidate is needed. When true a
	// negative identification counts as a contributor failure.
	RequiresAll() bool
}

// baseSelector holds the bookkeeping shared by all policies.
type baseSelector struct {
	status     *ResponseStatus
	identified map[string]string
	order      []string
}

func newBaseSelector(candidates []string) baseSelector {
	return baseSelector{
		status:     NewResponseStatus(candidates),
		identified: make(map[string]string),
	}
}

func (b *baseSelector) record(id Identification) error {
	if err := b.status.ResponseReceived(id.ContributorID); err != nil {
		return err
	}
	if id.Positive {
		if _, seen := b.identified[id.ContributorID]; !seen {
			b.identified[id.ContributorID] = id.ReplyTo
			b.order = append(b.order, id.ContributorID)
		}
	}
	return nil
}

func (b *baseSelector) Outstanding() []string {
	return b.status.Outstanding()
}

// AllSelector selects every positively identified candidate and is finished
// once all candidates have answered. Used by fan-out operations.
type AllSelector struct {
	baseSelector
}

// AllContributors returns a fan-out selector over candidates.
func AllContributors(candidates []string) *AllSelector {
	return &AllSelector{baseSelector: newBaseSelector(candidates)}
}

func (s *AllSelector) Process(id Identification) error { return s.record(id) }

func (s *AllSelector) IsFinished() bool { return s.status.HaveAllResponded() }

func (s *AllSelector) Selected() map[string]string { return maps.Clone(s.identified) }

func (s *AllSelector) RequiresAll() bool { return true }

// FirstSelector selects the first positively identified candidate.
type FirstSelector struct {
	baseSelector
}

// FirstContributor returns a selector finished at the first positive identification.
func FirstContributor(candidates []string) *FirstSelector {
	return &FirstSelector{baseSelector: newBaseSelector(candidates)}
}

func (s *FirstSelector) Process(id Identification) error { return s.record(id) }

func (s *FirstSelector) IsFinished() bool {
	return len(s.order) > 0 || s.status.HaveAllResponded()
}

func (s *FirstSelector) Selected() map[string]string {
	if len(s.order) == 0 {
		return map[string]string{}
	}
	first := s.order[0]
	return map[string]string{first: s.identified[first]}
}

func (s *FirstSelector) RequiresAll() bool { return false }

// FastestSelector waits for all candidates and selects the one reporting the
// lowest time to deliver. On timeout it picks among those that answered.
// Ties go to the earliest responder.
type FastestSelector struct {
	baseSelector
	timeToDeliver map[string]time.Duration
}

// FastestContributor returns a selector choosing the fastest candidate.
func FastestContributor(candidates []string) *FastestSelector {
	return &FastestSelector{
		baseSelector:  newBaseSelector(candidates),
		timeToDeliver: make(map[string]time.Duration),
	}
}

func (s *FastestSelector) Process(id Identification) error {
	if err := s.record(id); err != nil {
		return err
	}
	if id.Positive {
		s.timeToDeliver[id.ContributorID] = id.TimeToDeliver
	}
	return nil
}

func (s *FastestSelector) IsFinished() bool { return s.status.HaveAllResponded() }

func (s *FastestSelector) Selected() map[string]string {
	if len(s.order) == 0 {
		return map[string]string{}
	}
	best := s.order[0]
	for _, id := range s.order[1:] {
		if s.timeToDeliver[id] < s.timeToDeliver[best] {
			best = id
		}
	}
	return map[string]string{best: s.identified[best]}
}

func (s *FastestSelector) RequiresAll() bool { return false }

// SpecificSelector selects one named contributor. Identify responses from the
// other candidates are accepted and ignored.
type SpecificSelector struct {
	baseSelector
	target string
}

// SpecificContributor returns a selector that only picks target.
func SpecificContributor(candidates []string, target string) *SpecificSelector {
	return &SpecificSelector{baseSelector: newBaseSelector(candidates), target: target}
}

func (s *SpecificSelector) Process(id Identification) error {
	if err := s.status.ResponseReceived(id.ContributorID); err != nil {
		return err
	}
	if id.Positive && id.ContributorID == s.target {
		if _, seen := s.identified[s.target]; !seen {
			s.identified[s.target] = id.ReplyTo
			s.order = append(s.order, s.target)
		}
	}
	return nil
}

func (s *SpecificSelector) IsFinished() bool {
	return !s.status.IsOutstanding(s.target)
}

func (s *SpecificSelector) Selected() map[string]string { return maps.Clone(s.identified) }

func (s *SpecificSelector) RequiresAll() bool { return false }

// selectedIDs returns the sorted contributor IDs of a selection.
func selectedIDs(selected map[string]string) []string {
	return slices.Sorted(maps.Keys(selected))
}
