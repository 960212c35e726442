package ir

import (
	"errors"
	"fmt"
	"sort"
)

// Program supplies functions and instructions to the engines. It is
// implemented by a disassembler/lifter bridge or by an in-memory Listing.
type Program interface {
	// FunctionNamed returns the function with the given symbol name.
	FunctionNamed(name string) *Function

	// FunctionContaining returns the function whose body covers addr.
	FunctionContaining(addr uint64) *Function

	// FunctionAt returns the function starting exactly at addr.
	FunctionAt(addr uint64) *Function

	// InstructionAtIndex returns the instruction at the IL index in fn.
	InstructionAtIndex(fn *Function, index int) (Inst, bool)

	// InstructionAt returns the first IL instruction lifted from addr.
	InstructionAt(addr uint64) (Inst, bool)

	// FirstInstructionAddress returns the address of the first IL
	// instruction of fn.
	FirstInstructionAddress(fn *Function) (uint64, bool)

	// InstructionAfter returns the first IL instruction of the machine
	// instruction following addr.
	InstructionAfter(addr uint64) (Inst, bool)
}

// Function is a lifted function. External functions have no body.
type Function struct {
	Name     string
	Start    uint64
	External bool
	Insts    []Inst
}

// End returns the highest instruction address in the function.
func (fn *Function) End() uint64 {
	end := fn.Start
	for _, inst := range fn.Insts {
		if addr := inst.Position().Addr; addr > end {
			end = addr
		}
	}
	return end
}

var _ Program = (*Listing)(nil)

// Listing is an in-memory Program.
type Listing struct {
	fns     []*Function // sorted by start
	byName  map[string]*Function
	byStart map[uint64]*Function
	sites   map[uint64]site        // first IL instruction per address
	addrs   map[*Function][]uint64 // sorted unique addresses per function
}

type site struct {
	fn    *Function
	index int
}

// NewListing returns a Listing over fns. Instruction indexes must match
// their position within each function's Insts.
func NewListing(fns ...*Function) (*Listing, error) {
	l := &Listing{
		byName:  make(map[string]*Function),
		byStart: make(map[uint64]*Function),
		sites:   make(map[uint64]site),
		addrs:   make(map[*Function][]uint64),
	}

	for _, fn := range fns {
		if fn.Name == "" {
			return nil, errors.New("ir: function name required")
		} else if _, ok := l.byName[fn.Name]; ok {
			return nil, fmt.Errorf("ir: duplicate function: %s", fn.Name)
		} else if other, ok := l.byStart[fn.Start]; ok {
			return nil, fmt.Errorf("ir: functions %s and %s share start address %#x", other.Name, fn.Name, fn.Start)
		}
		l.byName[fn.Name] = fn
		l.byStart[fn.Start] = fn
		l.fns = append(l.fns, fn)

		seen := make(map[uint64]struct{})
		for i, inst := range fn.Insts {
			pos := inst.Position()
			if pos.Index != i {
				return nil, fmt.Errorf("ir: %s: instruction %d has index %d", fn.Name, i, pos.Index)
			}
			if _, ok := seen[pos.Addr]; !ok {
				seen[pos.Addr] = struct{}{}
				l.addrs[fn] = append(l.addrs[fn], pos.Addr)
			}
			if _, ok := l.sites[pos.Addr]; !ok {
				l.sites[pos.Addr] = site{fn: fn, index: i}
			}
		}
		sort.Slice(l.addrs[fn], func(i, j int) bool { return l.addrs[fn][i] < l.addrs[fn][j] })
	}
	sort.Slice(l.fns, func(i, j int) bool { return l.fns[i].Start < l.fns[j].Start })

	return l, nil
}

// MustNewListing is like NewListing but panics on error.
func MustNewListing(fns ...*Function) *Listing {
	l, err := NewListing(fns...)
	if err != nil {
		panic(err)
	}
	return l
}

// Functions returns all functions ordered by start address.
func (l *Listing) Functions() []*Function { return l.fns }

func (l *Listing) FunctionNamed(name string) *Function { return l.byName[name] }

func (l *Listing) FunctionAt(addr uint64) *Function { return l.byStart[addr] }

func (l *Listing) FunctionContaining(addr uint64) *Function {
	if s, ok := l.sites[addr]; ok {
		return s.fn
	}

	// Find the last function starting at or below addr.
	i := sort.Search(len(l.fns), func(i int) bool { return l.fns[i].Start > addr }) - 1
	if i < 0 {
		return nil
	}
	if fn := l.fns[i]; addr <= fn.End() {
		return fn
	}
	return nil
}

func (l *Listing) InstructionAtIndex(fn *Function, index int) (Inst, bool) {
	if fn == nil || index < 0 || index >= len(fn.Insts) {
		return nil, false
	}
	return fn.Insts[index], true
}

func (l *Listing) InstructionAt(addr uint64) (Inst, bool) {
	s, ok := l.sites[addr]
	if !ok {
		return nil, false
	}
	return s.fn.Insts[s.index], true
}

func (l *Listing) FirstInstructionAddress(fn *Function) (uint64, bool) {
	if fn == nil || len(fn.Insts) == 0 {
		return 0, false
	}
	return fn.Insts[0].Position().Addr, true
}

func (l *Listing) InstructionAfter(addr uint64) (Inst, bool) {
	s, ok := l.sites[addr]
	if !ok {
		return nil, false
	}

	addrs := l.addrs[s.fn]
	i := sort.Search(len(addrs), func(i int) bool { return addrs[i] > addr })
	if i >= len(addrs) {
		return nil, false
	}
	return l.InstructionAt(addrs[i])
}
