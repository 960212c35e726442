package lilt

import (
	"sort"

	"github.com/pkg/errors"
)

// Solver represents a logical constraint solver.
type Solver interface {
	// Returns the satisfiability of the set of constraints. If the formula
	// is satisfiable, a valid value is returned for each symbol passed in.
	Solve(constraints []Expr, symbols []*SymbolExpr) (satisfiable bool, values []uint64, err error)
}

// Model maps symbol names to the values a solver assigned them. Symbols
// sharing a name are keyed by their qualified name instead.
type Model map[string]uint64

// Names returns the symbol names in sorted order.
func (m Model) Names() []string {
	a := make([]string, 0, len(m))
	for name := range m {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

// Check asks solver whether the path constraints of s can be satisfied and,
// if so, returns a value for every symbol they mention.
func (s *SymbolicState) Check(solver Solver) (bool, Model, error) {
	symbols := FindSymbols(s.Constraints...)

	satisfiable, values, err := solver.Solve(s.Constraints, symbols)
	if err != nil {
		return false, nil, errors.Wrapf(err, "check state %d", s.ID)
	} else if !satisfiable {
		return false, nil, nil
	} else if len(values) != len(symbols) {
		return false, nil, errors.Errorf("lilt: solver returned %d values for %d symbols", len(values), len(symbols))
	}

	counts := make(map[string]int, len(symbols))
	for _, sym := range symbols {
		counts[sym.Name]++
	}

	m := make(Model, len(symbols))
	for i, sym := range symbols {
		if counts[sym.Name] > 1 {
			m[sym.QualifiedName()] = values[i]
			continue
		}
		m[sym.Name] = values[i]
	}
	return true, m, nil
}

// Values is like Check but returns ErrUnsatisfiable if the constraints
// cannot be met.
func (s *SymbolicState) Values(solver Solver) (Model, error) {
	satisfiable, m, err := s.Check(solver)
	if err != nil {
		return nil, err
	} else if !satisfiable {
		return nil, ErrUnsatisfiable
	}
	return m, nil
}
