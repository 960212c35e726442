package lilt

import (
	"context"
	"fmt"
	"sort"

	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RegisterSource taints Reg when a path reaches the instruction at
// (Addr, Index).
type RegisterSource struct {
	Addr  uint64
	Index int
	Reg   string
}

// MemorySource taints the word at Target when a path reaches the
// instruction at (Addr, Index).
type MemorySource struct {
	Addr   uint64
	Index  int
	Target uint64
}

// TaintState is one explored path of the taint tracker. The shadow state
// supplies the position and the concrete addresses of memory accesses.
type TaintState struct {
	ID     uuid.UUID
	Shadow *State

	RegisterSources []RegisterSource
	MemorySources   []MemorySource

	// Err is the step error that halted the path, if any.
	Err error

	regs mapset.Set[string]
	mem  mapset.Set[uint64]
}

func newTaintState(shadow *State) *TaintState {
	return &TaintState{
		ID:     uuid.New(),
		Shadow: shadow,
		regs:   mapset.NewThreadUnsafeSet[string](),
		mem:    mapset.NewThreadUnsafeSet[uint64](),
	}
}

// Clone returns a copy of the path with a new ID. Taint sets and sources are
// copied so the paths evolve independently.
func (ts *TaintState) Clone() *TaintState {
	other := &TaintState{
		ID:              uuid.New(),
		Shadow:          ts.Shadow.Clone(),
		RegisterSources: append([]RegisterSource(nil), ts.RegisterSources...),
		MemorySources:   append([]MemorySource(nil), ts.MemorySources...),
		Err:             ts.Err,
		regs:            ts.regs.Clone(),
		mem:             ts.mem.Clone(),
	}
	return other
}

// Pos returns the current position of the path.
func (ts *TaintState) Pos() ir.Pos { return ts.Shadow.Pos() }

// Status returns the status of the path's shadow state.
func (ts *TaintState) Status() Status { return ts.Shadow.Status }

// Live returns true if the path can still step.
func (ts *TaintState) Live() bool { return !ts.Shadow.Terminated() }

// IsRegisterTainted returns true if the register currently carries taint.
func (ts *TaintState) IsRegisterTainted(name string) bool { return ts.regs.Contains(name) }

// IsAddressTainted returns true if the word at addr currently carries taint.
func (ts *TaintState) IsAddressTainted(addr uint64) bool { return ts.mem.Contains(addr) }

// TaintedRegisters returns the tainted register names in sorted order.
func (ts *TaintState) TaintedRegisters() []string {
	a := ts.regs.ToSlice()
	sort.Strings(a)
	return a
}

// TaintedAddresses returns the tainted memory addresses in ascending order.
func (ts *TaintState) TaintedAddresses() []uint64 {
	a := ts.mem.ToSlice()
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}

func (ts *TaintState) setRegisterTaint(name string, tainted bool) {
	if tainted {
		ts.regs.Add(name)
	} else {
		ts.regs.Remove(name)
	}
}

func (ts *TaintState) setAddressTaint(addr uint64, tainted bool) {
	if tainted {
		ts.mem.Add(addr)
	} else {
		ts.mem.Remove(addr)
	}
}

// applySources taints the registers and words whose sources trigger at the
// current position.
func (ts *TaintState) applySources(logger *log.Logger) {
	pos := ts.Pos()
	for _, src := range ts.RegisterSources {
		if src.Addr == pos.Addr && src.Index == pos.Index {
			logger.Debug("taint source", log.Pos(pos.Addr, pos.Index), log.Reg(src.Reg))
			ts.regs.Add(src.Reg)
		}
	}
	for _, src := range ts.MemorySources {
		if src.Addr == pos.Addr && src.Index == pos.Index {
			logger.Debug("taint source", log.Pos(pos.Addr, pos.Index), zap.String("target", log.Hex(src.Target)))
			ts.mem.Add(src.Target)
		}
	}
}

// TaintTracker propagates taint along every path through a program. A
// conditional branch is never decided: both successors are followed.
type TaintTracker struct {
	exec  *Executor
	paths []*TaintState
}

// NewTaintTracker returns a tracker with a single path at the named entry
// function.
func NewTaintTracker(exec *Executor, entry string) (*TaintTracker, error) {
	s, err := exec.NewEntryState(entry)
	if err != nil {
		return nil, err
	}
	return &TaintTracker{exec: exec, paths: []*TaintState{newTaintState(s)}}, nil
}

// Paths returns every path created so far, including halted ones, in
// creation order. Fork indexes refer into this slice.
func (t *TaintTracker) Paths() []*TaintState { return t.paths }

// States returns the paths that can still step.
func (t *TaintTracker) States() []*TaintState {
	var a []*TaintState
	for _, ts := range t.paths {
		if ts.Live() {
			a = append(a, ts)
		}
	}
	return a
}

func (t *TaintTracker) path(index int) (*TaintState, error) {
	if index < 0 || index >= len(t.paths) {
		return nil, errors.Errorf("lilt: taint path %d out of range", index)
	}
	return t.paths[index], nil
}

// DeclareRegisterSource taints reg on the given path whenever it reaches the
// instruction at (addr, index).
func (t *TaintTracker) DeclareRegisterSource(stateIndex int, reg string, addr uint64, index int) error {
	ts, err := t.path(stateIndex)
	if err != nil {
		return err
	}
	ts.RegisterSources = append(ts.RegisterSources, RegisterSource{Addr: addr, Index: index, Reg: reg})
	return nil
}

// DeclareMemorySource taints the word at target on the given path whenever
// it reaches the instruction at (addr, index).
func (t *TaintTracker) DeclareMemorySource(stateIndex int, target, addr uint64, index int) error {
	ts, err := t.path(stateIndex)
	if err != nil {
		return err
	}
	ts.MemorySources = append(ts.MemorySources, MemorySource{Addr: addr, Index: index, Target: target})
	return nil
}

// Step advances every live path by one instruction. Paths forked during the
// step are not stepped until the next call. Returns ErrNoStateAvailable if
// no path is live.
func (t *TaintTracker) Step() error {
	n, live := len(t.paths), 0
	for i := 0; i < n; i++ {
		ts := t.paths[i]
		if !ts.Live() {
			continue
		}
		live++

		if err := t.stepPath(ts); err != nil {
			t.exec.Logger.Warn("taint path halted",
				zap.Stringer("path", ts.ID),
				log.Pos(ts.Shadow.Addr, ts.Shadow.Index),
				zap.Error(err),
			)
			ts.Err = err
			ts.Shadow.Status = StatusBlocked
		}
	}

	if live == 0 {
		return ErrNoStateAvailable
	}
	return nil
}

func (t *TaintTracker) stepPath(ts *TaintState) error {
	e := t.exec
	s := ts.Shadow

	fn, inst, err := e.fetch(&s.Cursor)
	if err != nil {
		return err
	} else if inst == nil {
		return nil // resumed from call stack
	}

	ts.applySources(e.Logger)

	switch inst := inst.(type) {
	case *ir.SetRegister:
		ts.setRegisterTaint(inst.Reg, t.IsTainted(inst.Expr, ts))
	case *ir.SetRegisterSplit:
		tainted := t.IsTainted(inst.Expr, ts)
		ts.setRegisterTaint(inst.High, tainted)
		ts.setRegisterTaint(inst.Low, tainted)
	case *ir.SetFlag:
		ts.setRegisterTaint("rflags", t.IsTainted(inst.Expr, ts))
	case *ir.Store:
		ts.setAddressTaint(e.Eval(inst.Dest, s), t.IsTainted(inst.Value, ts))
	case *ir.Push:
		ts.setAddressTaint(s.Register("rsp"), t.IsTainted(inst.Expr, ts))
	case *ir.Call:
		if callee, err := e.resolveCall(inst.Pos, e.Eval(inst.Target, s)); err == nil && callee.Stub {
			ts.setRegisterTaint("rax", false)
		}
	case *ir.ConditionalBranch:
		return t.fork(ts, inst)
	}

	return e.execute(s, fn, inst)
}

// fork sends ts to the true branch and a clone to the false branch. The
// clone is dropped if the tracker is at its path limit.
func (t *TaintTracker) fork(ts *TaintState, inst *ir.ConditionalBranch) error {
	e := t.exec

	if limit := e.Config.MaxPaths; limit > 0 && len(t.paths) >= limit {
		e.Logger.Warn("path limit reached, dropping false branch",
			log.Pos(inst.Addr, inst.Index),
			zap.Int("max", limit),
		)
	} else {
		other := ts.Clone()
		if err := e.seek(&other.Shadow.Cursor, inst.False); err != nil {
			other.Err = err
			other.Shadow.Status = StatusBlocked
		}
		t.paths = append(t.paths, other)
		e.Logger.Debug("fork", log.Pos(inst.Addr, inst.Index), zap.Stringer("path", other.ID))
	}

	return e.seek(&ts.Shadow.Cursor, inst.True)
}

// Run steps all paths up to n times, or up to the configured step budget if
// n is zero. Returns the number of steps taken. Stops once no path is live.
func (t *TaintTracker) Run(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		n = t.exec.Config.StepBudget
	}
	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		} else if err := t.Step(); err == ErrNoStateAvailable {
			return i, nil
		} else if err != nil {
			return i, err
		}
	}
	return n, nil
}

// IsTainted returns true if any input of expr carries taint on ts.
func (t *TaintTracker) IsTainted(expr ir.Expr, ts *TaintState) bool {
	switch expr := expr.(type) {
	case *ir.Register:
		return ts.regs.Contains(expr.Name)
	case *ir.Flag:
		return ts.regs.Contains("rflags")
	case *ir.Load:
		if t.IsTainted(expr.Addr, ts) {
			return true
		}
		return ts.mem.Contains(t.exec.Eval(expr.Addr, ts.Shadow))
	case *ir.Binary:
		return t.IsTainted(expr.LHS, ts) || t.IsTainted(expr.RHS, ts)
	case *ir.DivHi:
		return t.IsTainted(expr.High, ts) || t.IsTainted(expr.Low, ts) || t.IsTainted(expr.Divisor, ts)
	case *ir.Constant, *ir.Undefined:
		return false
	default:
		panic(fmt.Sprintf("lilt: unexpected expression type: %T", expr))
	}
}
