package lilt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/benbjohnson/immutable"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// DefaultSymbolicStdin is the input buffer of a symbolic state when the
// configuration supplies none.
const DefaultSymbolicStdin = "Here is some test stdin"

// AccessKind identifies the operation behind a SymbolicAccess.
type AccessKind string

const (
	AccessLoad  = AccessKind("load")
	AccessStore = AccessKind("store")
	AccessPush  = AccessKind("push")
)

// SymbolicAccess records a memory access whose address is not a constant.
// Such accesses are reported but not resolved.
type SymbolicAccess struct {
	Pos  ir.Pos
	Kind AccessKind
	Addr Expr
}

func (a SymbolicAccess) String() string {
	return fmt.Sprintf("%s %s %s", a.Pos, a.Kind, a.Addr)
}

// SymbolicState is one path of symbolic exploration. Registers, flags and
// memory words hold bit-vector formulas.
type SymbolicState struct {
	Cursor

	ID int

	regs   *immutable.SortedMap // register name -> Expr
	flags  *immutable.SortedMap // flag name -> Expr
	memory *immutable.SortedMap // address -> Expr

	// Path condition. Every element is a boolean formula.
	Constraints []Expr
	keys        map[uint64]struct{}

	// Memory accesses through symbolic addresses.
	Accesses []SymbolicAccess

	Stdin string

	// Err is the step error that halted the state, if any.
	Err error
}

// NewSymbolicState returns a state with the default concrete register file
// and the stack pointer set to sp.
func NewSymbolicState(sp uint64) *SymbolicState {
	s := &SymbolicState{
		Cursor: Cursor{Status: StatusRunning},
		regs:   immutable.NewSortedMap(&stringComparer{}),
		flags:  immutable.NewSortedMap(&stringComparer{}),
		memory: immutable.NewSortedMap(&uint64Comparer{}),
		keys:   make(map[uint64]struct{}),
		Stdin:  DefaultSymbolicStdin,
	}
	for i, name := range defaultRegisters {
		s.regs = s.regs.Set(name, NewConstantExpr64(defaultRegisterValue(name, i)))
	}
	s.regs = s.regs.Set("rsp", NewConstantExpr64(sp))
	return s
}

// Clone returns an independent copy of the state.
func (s *SymbolicState) Clone() *SymbolicState {
	other := *s
	other.Cursor = s.Cursor.clone()
	other.Constraints = append([]Expr(nil), s.Constraints...)
	other.Accesses = append([]SymbolicAccess(nil), s.Accesses...)
	other.keys = make(map[uint64]struct{}, len(s.keys))
	for k := range s.keys {
		other.keys[k] = struct{}{}
	}
	return &other
}

// Register returns the formula held by a register. Unset registers read as
// a zero constant.
func (s *SymbolicState) Register(name string) Expr {
	if v, ok := s.regs.Get(name); ok {
		return v.(Expr)
	}
	return NewConstantExpr64(0)
}

// SetRegister sets the formula held by a register.
func (s *SymbolicState) SetRegister(name string, value Expr) {
	s.regs = s.regs.Set(name, value)
}

// Flag returns the formula held by a condition flag.
func (s *SymbolicState) Flag(name string) Expr {
	if v, ok := s.flags.Get(name); ok {
		return v.(Expr)
	}
	return NewConstantExpr64(0)
}

// SetFlag sets the formula held by a condition flag.
func (s *SymbolicState) SetFlag(name string, value Expr) {
	s.flags = s.flags.Set(name, value)
}

// Load returns the formula stored at a concrete address, or a zero constant.
func (s *SymbolicState) Load(addr uint64) Expr {
	if v, ok := s.memory.Get(addr); ok {
		return v.(Expr)
	}
	return NewConstantExpr64(0)
}

// Store writes a formula to a concrete address.
func (s *SymbolicState) Store(addr uint64, value Expr) {
	s.memory = s.memory.Set(addr, value)
}

// AddConstraint appends expr to the path condition. Constant true formulas
// and formulas already present are ignored. Returns true if added.
func (s *SymbolicState) AddConstraint(expr Expr) bool {
	if IsConstantExpr(expr) {
		assert(IsConstantTrue(expr), "invalid false constraint")
		return false
	}

	// Split logical conjunctions into two separate constraints.
	if e, ok := expr.(*BinaryExpr); ok && e.Op == AND && ExprWidth(e) == WidthBool {
		a := s.AddConstraint(e.LHS)
		b := s.AddConstraint(e.RHS)
		return a || b
	}

	key := xxhash.Sum64String(expr.String())
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.Constraints = append(s.Constraints, expr)
	return true
}

// SetConcreteRegister implements Machine.
func (s *SymbolicState) SetConcreteRegister(name string, value uint64) {
	s.SetRegister(name, NewConstantExpr64(value))
}

// SetStdin implements Machine.
func (s *SymbolicState) SetStdin(v string) { s.Stdin = v }

// RegisterString implements Machine.
func (s *SymbolicState) RegisterString(name string) string {
	if v, ok := s.Register(name).(*ConstantExpr); ok {
		return log.Hex(v.Value)
	}
	return s.Register(name).String()
}

// SymbolicRegisterValue is a named register formula.
type SymbolicRegisterValue struct {
	Name  string
	Value Expr
}

// Registers returns all registers sorted by name.
func (s *SymbolicState) Registers() []SymbolicRegisterValue {
	a := make([]SymbolicRegisterValue, 0, s.regs.Len())
	itr := s.regs.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, SymbolicRegisterValue{Name: k.(string), Value: v.(Expr)})
	}
}

// Dump returns the contents of the state as a string.
func (s *SymbolicState) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "SYMBOLIC STATE #%d\n", s.ID)
	fmt.Fprintln(&buf, "=================")
	fmt.Fprintf(&buf, "status=%s\n", s.Status)
	fmt.Fprintf(&buf, "pos=%s\n", s.Pos())
	fmt.Fprintf(&buf, "stdin=%q\n", s.Stdin)
	if s.Err != nil {
		fmt.Fprintf(&buf, "err=%s\n", s.Err)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== REGISTERS")
	for _, r := range s.Registers() {
		fmt.Fprintf(&buf, "%-8s %s\n", r.Name, r.Value)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== MEMORY")
	itr := s.memory.Iterator()
	for k, v := itr.Next(); k != nil; k, v = itr.Next() {
		fmt.Fprintf(&buf, "%#016x %s\n", k.(uint64), v.(Expr))
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for _, c := range s.Constraints {
		fmt.Fprintln(&buf, c.String())
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== SYMBOLIC ACCESSES")
	for _, a := range s.Accesses {
		fmt.Fprintln(&buf, a.String())
	}
	return buf.String()
}

// SymbolicExecutor explores every feasible direction of symbolic branches.
// Control flow, stubs and program lookups are shared with Executor.
type SymbolicExecutor struct {
	exec   *Executor
	root   *SymbolicState
	states []*SymbolicState // all states, in creation order

	stateIDSeq  int
	symbolIDSeq uint64

	// Search strategy for the executor. Defaults to the configured strategy.
	Searcher Searcher
}

// NewSymbolicExecutor returns an executor with a single state at the named
// entry function. Registers named in the configuration start as symbols.
func NewSymbolicExecutor(exec *Executor, entry string) (*SymbolicExecutor, error) {
	searcher, err := NewSearcher(exec.Config.Search, exec.Config.Seed)
	if err != nil {
		return nil, err
	}

	pos, err := exec.entryPos(entry)
	if err != nil {
		return nil, err
	}

	x := &SymbolicExecutor{exec: exec, Searcher: searcher}

	x.root = NewSymbolicState(exec.Config.StackPointer)
	x.root.ID = x.nextStateID()
	x.root.Addr, x.root.Index = pos.Addr, pos.Index
	if exec.Config.Stdin != "" {
		x.root.Stdin = exec.Config.Stdin
	}
	for _, name := range exec.Config.SymbolicRegisters {
		x.MakeSymbolic(x.root, name)
	}

	x.states = []*SymbolicState{x.root}
	x.Searcher.AddState(x.root)
	return x, nil
}

// RootState returns the initial state.
func (x *SymbolicExecutor) RootState() *SymbolicState { return x.root }

// States returns every state created so far in creation order.
func (x *SymbolicExecutor) States() []*SymbolicState { return x.states }

func (x *SymbolicExecutor) nextStateID() int {
	x.stateIDSeq++
	return x.stateIDSeq
}

// NewSymbol returns a fresh 64-bit symbol.
func (x *SymbolicExecutor) NewSymbol(name string) *SymbolExpr {
	x.symbolIDSeq++
	return NewSymbolExpr(x.symbolIDSeq, name, Width64)
}

// MakeSymbolic replaces the value of a register with a fresh symbol named
// after the register.
func (x *SymbolicExecutor) MakeSymbolic(s *SymbolicState, reg string) *SymbolExpr {
	sym := x.NewSymbol(reg)
	s.SetRegister(reg, sym)
	return sym
}

// ExecuteNextState selects a state and runs it until it forks, blocks, or
// n steps have been taken. A state that is still running is returned to the
// searcher. Returns ErrNoStateAvailable once no state remains.
func (x *SymbolicExecutor) ExecuteNextState(n int) (*SymbolicState, int, error) {
	s := x.Searcher.SelectState()
	if s == nil {
		return nil, 0, ErrNoStateAvailable
	} else if s.Terminated() {
		return s, 0, nil // forked into an unreachable branch
	}

	logger := x.exec.Logger.With(zap.Int("state", s.ID))
	logger.Debug("state begin", log.Pos(s.Addr, s.Index))

	var steps int
	for n <= 0 || steps < n {
		steps++
		other, err := x.Step(s)
		if other != nil {
			x.Searcher.AddState(other)
		}
		if err != nil {
			logger.Warn("symbolic state halted", log.Pos(s.Addr, s.Index), zap.Error(err))
			s.Err = err
			s.Status = StatusBlocked
			return s, steps, nil
		} else if s.Terminated() {
			return s, steps, nil
		} else if other != nil {
			break
		}
	}

	x.Searcher.AddState(s)
	return s, steps, nil
}

// Run explores states until none remain or n steps have been taken in
// total, using the configured step budget when n is zero. Returns the number
// of steps taken.
func (x *SymbolicExecutor) Run(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		n = x.exec.Config.StepBudget
	}

	var steps int
	for n <= 0 || steps < n {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		limit := 0
		if n > 0 {
			limit = n - steps
		}
		_, m, err := x.ExecuteNextState(limit)
		if err == ErrNoStateAvailable {
			return steps, nil
		} else if err != nil {
			return steps, err
		}
		steps += m
	}
	return steps, nil
}

// Step executes a single instruction of s. If a symbolic branch forks the
// state, the new state taking the false direction is returned.
func (x *SymbolicExecutor) Step(s *SymbolicState) (*SymbolicState, error) {
	if s.Terminated() {
		return nil, ErrStateBlocked
	}

	e := x.exec
	fn, inst, err := e.fetch(&s.Cursor)
	if err != nil {
		return nil, err
	} else if inst == nil {
		return nil, nil // resumed from call stack
	}

	e.Logger.Debug("symbolic step", zap.Int("state", s.ID), log.Pos(s.Addr, s.Index), zap.Stringer("inst", inst))

	switch inst := inst.(type) {
	case *ir.SetRegister:
		s.SetRegister(inst.Reg, x.Eval(inst.Expr, s))
	case *ir.SetRegisterSplit:
		v := x.Eval(inst.Expr, s)
		s.SetRegister(inst.High, NewCastExpr(NewExtractExpr(v, 32, 32), Width64, false))
		s.SetRegister(inst.Low, NewCastExpr(NewExtractExpr(v, 0, 32), Width64, false))
	case *ir.SetFlag:
		s.SetFlag(inst.Flag, x.Eval(inst.Expr, s))
	case *ir.Store:
		x.store(s, AccessStore, x.Eval(inst.Dest, s), x.Eval(inst.Value, s))
	case *ir.Push:
		sp := s.Register("rsp")
		x.store(s, AccessPush, sp, x.Eval(inst.Expr, s))
		s.SetRegister("rsp", x.binary(ir.Sub, sp, NewConstantExpr64(WordSize)))
	case *ir.IndirectJump:
		target, ok := x.Eval(inst.Target, s).(*ConstantExpr)
		if !ok {
			return nil, stepErrorf(LookupFailure, inst.Pos, "symbolic jump target")
		}
		return nil, e.seek(&s.Cursor, target.Value)
	case *ir.ConditionalBranch:
		return x.branch(s, inst)
	case *ir.Call:
		return nil, x.call(s, fn, inst)
	default:
		return nil, e.executeControlInst(&s.Cursor, fn, inst)
	}

	e.advance(&s.Cursor, fn)
	return nil, nil
}

// store writes value to a constant address. A store through a symbolic
// address is recorded and dropped.
func (x *SymbolicExecutor) store(s *SymbolicState, kind AccessKind, addr, value Expr) {
	if addr, ok := addr.(*ConstantExpr); ok {
		s.Store(addr.Value, value)
		return
	}
	x.exec.Logger.Info("symbolic memory access", zap.Int("state", s.ID), log.Pos(s.Addr, s.Index), zap.String("kind", string(kind)))
	s.Accesses = append(s.Accesses, SymbolicAccess{Pos: s.Pos(), Kind: kind, Addr: addr})
}

// branch takes a constant condition directly. A symbolic condition forks
// the state and constrains each side; the solver is not consulted.
func (x *SymbolicExecutor) branch(s *SymbolicState, inst *ir.ConditionalBranch) (*SymbolicState, error) {
	e := x.exec

	cond := x.Eval(inst.Cond, s)
	if cond, ok := cond.(*ConstantExpr); ok {
		if cond.Value != 0 {
			return nil, e.seek(&s.Cursor, inst.True)
		}
		return nil, e.seek(&s.Cursor, inst.False)
	}

	var other *SymbolicState
	if limit := e.Config.MaxPaths; limit > 0 && len(x.states) >= limit {
		e.Logger.Warn("path limit reached, dropping false branch", log.Pos(inst.Addr, inst.Index), zap.Int("max", limit))
	} else {
		other = s.Clone()
		other.ID = x.nextStateID()
		other.AddConstraint(NewIsZeroExpr(cond))
		if err := e.seek(&other.Cursor, inst.False); err != nil {
			other.Err, other.Status = err, StatusBlocked
		}
		x.states = append(x.states, other)
		e.Logger.Debug("fork", log.Pos(inst.Addr, inst.Index), zap.Int("state", s.ID), zap.Int("child", other.ID))
	}

	s.AddConstraint(NewIsNonZeroExpr(cond))
	if err := e.seek(&s.Cursor, inst.True); err != nil {
		return other, err
	}
	return other, nil
}

func (x *SymbolicExecutor) call(s *SymbolicState, fn *ir.Function, inst *ir.Call) error {
	e := x.exec

	target, ok := x.Eval(inst.Target, s).(*ConstantExpr)
	if !ok {
		return stepErrorf(CallTargetUnresolved, inst.Pos, "symbolic call target")
	}
	callee, err := e.resolveCall(inst.Pos, target.Value)
	if err != nil {
		return err
	}

	if callee.Stub {
		callee.Proc.Call(s, callee.Fn.Name, &e.Config, e.Logger)
		e.advance(&s.Cursor, fn)
		return nil
	}
	return e.enterCall(&s.Cursor, inst.Pos, callee.Fn, target.Value)
}

// Eval builds the formula for expr over s. Operations whose inputs are all
// constant are computed exactly as the concrete evaluator does.
func (x *SymbolicExecutor) Eval(expr ir.Expr, s *SymbolicState) Expr {
	switch expr := expr.(type) {
	case *ir.Register:
		return s.Register(expr.Name)
	case *ir.Constant:
		return NewConstantExpr64(expr.Value)
	case *ir.Flag:
		return s.Flag(expr.Name)
	case *ir.Load:
		addr := x.Eval(expr.Addr, s)
		if x.exec.Config.LoadMode == LoadModeAddress {
			return addr
		} else if addr, ok := addr.(*ConstantExpr); ok {
			return s.Load(addr.Value)
		}
		s.Accesses = append(s.Accesses, SymbolicAccess{Pos: s.Pos(), Kind: AccessLoad, Addr: addr})
		return x.NewSymbol(fmt.Sprintf("load_%x_%d_%d", s.Addr, s.Index, x.symbolIDSeq+1))
	case *ir.Binary:
		return x.binary(expr.Op, x.Eval(expr.LHS, s), x.Eval(expr.RHS, s))
	case *ir.DivHi:
		return x.divHi(expr.Op, x.Eval(expr.High, s), x.Eval(expr.Low, s), x.Eval(expr.Divisor, s))
	case *ir.Undefined:
		x.exec.Logger.Unmodeled(s.Addr, s.Index, expr.Text)
		return x.NewSymbol(fmt.Sprintf("undef_%x_%d_%d", s.Addr, s.Index, x.symbolIDSeq+1))
	default:
		panic(fmt.Sprintf("lilt: unexpected expression type: %T", expr))
	}
}

var irBinaryOps = map[ir.Op]BinaryOp{
	ir.Add:  ADD,
	ir.Sub:  SUB,
	ir.And:  AND,
	ir.Or:   OR,
	ir.Xor:  XOR,
	ir.Mul:  MUL,
	ir.Divu: UDIV,
	ir.Divs: SDIV,
	ir.Modu: UREM,
	ir.Mods: SREM,
	ir.Lsl:  SHL,
	ir.Lsr:  LSHR,
	ir.Asr:  ASHR,
	ir.Rol:  ROTL,
	ir.Ror:  ROTR,

	ir.CmpE:   EQ,
	ir.CmpNe:  NE,
	ir.CmpSlt: SLT,
	ir.CmpSle: SLE,
	ir.CmpSge: SGE,
	ir.CmpSgt: SGT,
	ir.CmpUlt: ULT,
	ir.CmpUle: ULE,
	ir.CmpUge: UGE,
	ir.CmpUgt: UGT,
}

func (x *SymbolicExecutor) binary(op ir.Op, lhs, rhs Expr) Expr {
	if l, ok := lhs.(*ConstantExpr); ok {
		if r, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr64(EvalBinary(op, l.Value, r.Value))
		}
	}

	switch op {
	case ir.MulHiU, ir.MulHiS:
		signed := op == ir.MulHiS
		product := NewBinaryExpr(MUL, NewCastExpr(lhs, Width128, signed), NewCastExpr(rhs, Width128, signed))
		return NewExtractExpr(product, 64, 64)
	}

	bop, ok := irBinaryOps[op]
	assert(ok, "unexpected binary op: %s", op)
	if bop.IsCompare() {
		return NewCastExpr(NewBinaryExpr(bop, lhs, rhs), Width64, false)
	}
	return NewBinaryExpr(bop, lhs, rhs)
}

func (x *SymbolicExecutor) divHi(op ir.DivHiOp, high, low, divisor Expr) Expr {
	h, hok := high.(*ConstantExpr)
	l, lok := low.(*ConstantExpr)
	d, dok := divisor.(*ConstantExpr)
	if hok && lok && dok {
		return NewConstantExpr64(EvalDivHi(op, h.Value, l.Value, d.Value))
	}

	var bop BinaryOp
	switch op {
	case ir.DivuDp:
		bop = UDIV
	case ir.DivsDp:
		bop = SDIV
	case ir.ModuDp:
		bop = UREM
	case ir.ModsDp:
		bop = SREM
	default:
		panic(fmt.Sprintf("lilt: unexpected divhi op: %s", op))
	}

	dividend := NewConcatExpr(high, low)
	result := NewBinaryExpr(bop, dividend, NewCastExpr(divisor, Width128, op.Signed()))
	return NewExtractExpr(result, 0, Width64)
}
