package lilt

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Searcher represents a strategy for finding the next symbolic state to execute.
type Searcher interface {
	// Returns the next state to explore.
	SelectState() *SymbolicState

	// Adds states to the current searcher.
	AddState(state *SymbolicState)
}

// NewSearcher returns the searcher named by strategy.
func NewSearcher(strategy SearchStrategy, seed int64) (Searcher, error) {
	switch strategy {
	case SearchDFS, "":
		return NewDFSSearcher(), nil
	case SearchBFS:
		return NewBFSSearcher(), nil
	case SearchRandom:
		return NewRandomSearcher(rand.New(rand.NewSource(seed))), nil
	case SearchMulti:
		return NewMultiSearcher(NewDFSSearcher(), NewBFSSearcher(), NewRandomSearcher(rand.New(rand.NewSource(seed)))), nil
	default:
		return nil, errors.Errorf("lilt: unknown search strategy: %q", strategy)
	}
}

var _ Searcher = (*MultiSearcher)(nil)

// MultiSearcher represents a Searcher that chooses a searcher round-robin.
// A state selected by one searcher is skipped when another offers it later.
// Each sub-searcher holds at most one queued copy of a state.
type MultiSearcher struct {
	searchers []Searcher
	index     int
	selected  map[*SymbolicState]struct{}
	queued    []map[*SymbolicState]struct{} // per searcher
}

// NewMultiSearcher returns a new instance of MultiSearcher.
func NewMultiSearcher(searchers ...Searcher) *MultiSearcher {
	s := &MultiSearcher{
		searchers: searchers,
		selected:  make(map[*SymbolicState]struct{}),
		queued:    make([]map[*SymbolicState]struct{}, len(searchers)),
	}
	for i := range s.queued {
		s.queued[i] = make(map[*SymbolicState]struct{})
	}
	return s
}

// SelectState returns the next state to explore from the next searcher.
func (s *MultiSearcher) SelectState() *SymbolicState {
	for range s.searchers {
		i := s.index
		if s.index++; s.index >= len(s.searchers) {
			s.index = 0
		}

		for {
			state := s.searchers[i].SelectState()
			if state == nil {
				break
			}
			delete(s.queued[i], state)
			if _, ok := s.selected[state]; ok {
				continue
			}
			s.selected[state] = struct{}{}
			return state
		}
	}
	return nil
}

// AddState adds a new state to the searcher.
func (s *MultiSearcher) AddState(state *SymbolicState) {
	delete(s.selected, state)
	for i, searcher := range s.searchers {
		if _, ok := s.queued[i][state]; ok {
			continue
		}
		s.queued[i][state] = struct{}{}
		searcher.AddState(state)
	}
}

// DFSSearcher represents a searcher with a depth-first search strategy.
type DFSSearcher struct {
	states []*SymbolicState
}

// NewDFSSearcher returns a new instance of DFSSearcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

// SelectState returns the next execution state to explore.
func (s *DFSSearcher) SelectState() *SymbolicState {
	if len(s.states) == 0 {
		return nil
	}
	state := s.states[len(s.states)-1]
	s.states = s.states[:len(s.states)-1]
	return state
}

// AddState adds a new state to the searcher.
func (s *DFSSearcher) AddState(state *SymbolicState) {
	s.states = append(s.states, state)
}

// BFSSearcher represents a searcher with a breadth-first search strategy.
type BFSSearcher struct {
	states []*SymbolicState
}

// NewBFSSearcher returns a new instance of BFSSearcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

// SelectState returns the next execution state to explore.
func (s *BFSSearcher) SelectState() *SymbolicState {
	if len(s.states) == 0 {
		return nil
	}
	state := s.states[0]
	s.states = s.states[1:]
	return state
}

// AddState adds a new state to the searcher.
func (s *BFSSearcher) AddState(state *SymbolicState) {
	s.states = append(s.states, state)
}

type RandomSearcher struct {
	states []*SymbolicState
	rand   *rand.Rand
}

func NewRandomSearcher(rand *rand.Rand) *RandomSearcher {
	return &RandomSearcher{
		rand: rand,
	}
}

// SelectState returns a random execution state to explore.
func (s *RandomSearcher) SelectState() *SymbolicState {
	if len(s.states) == 0 {
		return nil
	}
	i := s.rand.Intn(len(s.states))
	state := s.states[i]
	s.states = append(s.states[:i], s.states[i+1:]...)
	return state
}

// AddState adds a new state to the searcher.
func (s *RandomSearcher) AddState(state *SymbolicState) {
	s.states = append(s.states, state)
}
