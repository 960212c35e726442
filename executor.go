package lilt

import (
	"context"
	"fmt"

	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Executor steps concrete states through a Program.
type Executor struct {
	Program ir.Program
	Config  Config
	Logger  *log.Logger

	eval Evaluator
}

// NewExecutor returns a new instance of Executor. A nil logger discards output.
func NewExecutor(prog ir.Program, config Config, logger *log.Logger) *Executor {
	logger = log.OrNop(logger)
	return &Executor{
		Program: prog,
		Config:  config,
		Logger:  logger,
		eval:    Evaluator{LoadMode: config.LoadMode, Logger: logger},
	}
}

// Eval evaluates expr against s using the executor's load mode.
func (e *Executor) Eval(expr ir.Expr, s *State) uint64 {
	return e.eval.Eval(expr, s)
}

// NewEntryState returns a state positioned at the first instruction of the
// named function. An empty name tries the configured entry, then main and
// _start.
func (e *Executor) NewEntryState(name string) (*State, error) {
	pos, err := e.entryPos(name)
	if err != nil {
		return nil, err
	}
	s := NewState(e.Config.StackPointer)
	s.Addr, s.Index = pos.Addr, pos.Index
	s.Stdin = e.Config.Stdin
	return s, nil
}

func (e *Executor) entryPos(name string) (ir.Pos, error) {
	candidates := []string{name}
	if name == "" {
		candidates = []string{e.Config.Entry, "main", "_start"}
	}

	for _, name := range candidates {
		fn := e.Program.FunctionNamed(name)
		if fn == nil {
			continue
		}
		addr, ok := e.Program.FirstInstructionAddress(fn)
		if !ok {
			return ir.Pos{}, errors.Wrapf(ErrEntryNotFound, "%s has no instructions", name)
		}
		inst, ok := e.Program.InstructionAt(addr)
		if !ok {
			return ir.Pos{}, errors.Wrapf(ErrEntryNotFound, "no instruction at %#x", addr)
		}
		return inst.Position(), nil
	}
	return ir.Pos{}, errors.Wrapf(ErrEntryNotFound, "%q", name)
}

// Step executes the instruction at the state's position and advances it.
func (e *Executor) Step(s *State) error {
	if s.Terminated() {
		return ErrStateBlocked
	}

	fn, inst, err := e.fetch(&s.Cursor)
	if err != nil {
		return err
	} else if inst == nil {
		return nil // resumed from call stack
	}
	return e.execute(s, fn, inst)
}

// Run steps s up to n times, or up to the configured step budget if n is
// zero. Returns the number of steps taken. Stops early if the state blocks.
func (e *Executor) Run(ctx context.Context, s *State, n int) (int, error) {
	if n <= 0 {
		n = e.Config.StepBudget
	}
	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		} else if s.Terminated() {
			return i, nil
		} else if err := e.Step(s); err != nil {
			return i + 1, err
		}
	}
	return n, nil
}

// fetch returns the instruction at the cursor. If the current function has
// no instruction at the position, the cursor returns to the most recent
// caller and a nil instruction is returned. With an empty call stack the
// cursor blocks.
func (e *Executor) fetch(c *Cursor) (*ir.Function, ir.Inst, error) {
	fn := e.Program.FunctionContaining(c.Addr)
	if inst, ok := e.Program.InstructionAtIndex(fn, c.Index); ok {
		if c.Status == StatusReturned {
			c.Status = StatusRunning
		}
		return fn, inst, nil
	}

	pos := c.Pos()
	if ret, ok := c.PopCall(); ok {
		e.Logger.Debug("return from exhausted function", log.Pos(pos.Addr, pos.Index), zap.String("to", log.Hex(ret)))
		if err := e.seek(c, ret); err != nil {
			c.Status = StatusBlocked
			return nil, nil, err
		}
		c.Status = StatusReturned
		return nil, nil, nil
	}

	c.Status = StatusBlocked
	return nil, nil, stepErrorf(LookupFailure, pos, "no instruction and empty call stack")
}

// execute applies inst to s and moves s to its next position.
func (e *Executor) execute(s *State, fn *ir.Function, inst ir.Inst) error {
	e.Logger.Debug("step", log.Pos(s.Addr, s.Index), zap.Stringer("inst", inst))

	switch inst := inst.(type) {
	case *ir.SetRegister:
		return e.executeSetRegisterInst(s, fn, inst)
	case *ir.SetRegisterSplit:
		return e.executeSetRegisterSplitInst(s, fn, inst)
	case *ir.SetFlag:
		return e.executeSetFlagInst(s, fn, inst)
	case *ir.Store:
		return e.executeStoreInst(s, fn, inst)
	case *ir.Push:
		return e.executePushInst(s, fn, inst)
	case *ir.IndirectJump:
		return e.seek(&s.Cursor, e.Eval(inst.Target, s))
	case *ir.ConditionalBranch:
		return e.executeConditionalBranchInst(s, inst)
	case *ir.Call:
		return e.executeCallInst(s, fn, inst)
	default:
		return e.executeControlInst(&s.Cursor, fn, inst)
	}
}

// executeControlInst executes instructions that only move the cursor. These
// behave the same in every engine.
func (e *Executor) executeControlInst(c *Cursor, fn *ir.Function, inst ir.Inst) error {
	switch inst := inst.(type) {
	case *ir.Jump:
		return e.seek(c, inst.Target)
	case *ir.Return:
		return e.executeReturn(c)
	case *ir.Goto:
		return e.executeGoto(c, fn, inst)
	case *ir.Nop:
		e.advance(c, fn)
		return nil
	case *ir.Syscall, *ir.Breakpoint:
		e.Logger.Info("unmodeled instruction", log.Pos(c.Addr, c.Index), zap.Stringer("inst", inst))
		e.advance(c, fn)
		return nil
	case *ir.NoReturn, *ir.Trap:
		e.Logger.Info("halt", log.Pos(c.Addr, c.Index), zap.Stringer("inst", inst))
		c.Status = StatusBlocked
		return nil
	case *ir.UndefinedInst:
		e.Logger.Unmodeled(c.Addr, c.Index, inst.Text)
		e.advance(c, fn)
		return nil
	default:
		panic(fmt.Sprintf("lilt: unexpected instruction type: %T", inst))
	}
}

func (e *Executor) executeSetRegisterInst(s *State, fn *ir.Function, inst *ir.SetRegister) error {
	s.SetRegister(inst.Reg, e.Eval(inst.Expr, s))
	e.advance(&s.Cursor, fn)
	return nil
}

func (e *Executor) executeSetRegisterSplitInst(s *State, fn *ir.Function, inst *ir.SetRegisterSplit) error {
	v := e.Eval(inst.Expr, s)
	s.SetRegister(inst.High, v>>32)
	s.SetRegister(inst.Low, v&0xFFFFFFFF)
	e.advance(&s.Cursor, fn)
	return nil
}

func (e *Executor) executeSetFlagInst(s *State, fn *ir.Function, inst *ir.SetFlag) error {
	s.SetFlag(inst.Flag, e.Eval(inst.Expr, s))
	e.advance(&s.Cursor, fn)
	return nil
}

func (e *Executor) executeStoreInst(s *State, fn *ir.Function, inst *ir.Store) error {
	s.Store(e.Eval(inst.Dest, s), e.Eval(inst.Value, s))
	e.advance(&s.Cursor, fn)
	return nil
}

func (e *Executor) executePushInst(s *State, fn *ir.Function, inst *ir.Push) error {
	s.Push(e.Eval(inst.Expr, s))
	e.advance(&s.Cursor, fn)
	return nil
}

func (e *Executor) executeConditionalBranchInst(s *State, inst *ir.ConditionalBranch) error {
	if e.Eval(inst.Cond, s) != 0 {
		return e.seek(&s.Cursor, inst.True)
	}
	return e.seek(&s.Cursor, inst.False)
}

func (e *Executor) executeCallInst(s *State, fn *ir.Function, inst *ir.Call) error {
	target := e.Eval(inst.Target, s)
	callee, err := e.resolveCall(inst.Pos, target)
	if err != nil {
		return err
	}

	if callee.Stub {
		callee.Proc.Call(s, callee.Fn.Name, &e.Config, e.Logger)
		e.advance(&s.Cursor, fn)
		return nil
	}
	return e.enterCall(&s.Cursor, inst.Pos, callee.Fn, target)
}

// callee is a resolved call target.
type callee struct {
	Fn   *ir.Function
	Proc Procedure
	Stub bool // run Proc instead of stepping into Fn
}

// resolveCall maps a call target address to a function. Known procedure
// names and external functions are handled by stubs.
func (e *Executor) resolveCall(pos ir.Pos, target uint64) (callee, error) {
	fn := e.Program.FunctionAt(target)
	if fn == nil {
		return callee{}, stepErrorf(CallTargetUnresolved, pos, "no function at %#x", target)
	}
	proc := LookupProcedure(fn.Name)
	return callee{Fn: fn, Proc: proc, Stub: proc != ProcUnknown || fn.External}, nil
}

// enterCall pushes the return address and moves the cursor into fn at the
// call continuation offset.
func (e *Executor) enterCall(c *Cursor, pos ir.Pos, fn *ir.Function, target uint64) error {
	if ret, ok := e.Program.InstructionAfter(pos.Addr); ok {
		c.PushCall(ret.Position().Addr)
	} else {
		e.Logger.Warn("no return site after call", log.Pos(pos.Addr, pos.Index))
	}

	dest := target + e.Config.CallContinuationOffset
	if inst, ok := e.Program.InstructionAt(dest); ok {
		c.Addr, c.Index = inst.Position().Addr, inst.Position().Index
		return nil
	}

	// Otherwise use the first instruction past the continuation address.
	var next ir.Inst
	for _, inst := range fn.Insts {
		if addr := inst.Position().Addr; addr >= dest && (next == nil || addr < next.Position().Addr) {
			next = inst
		}
	}
	if next == nil {
		return stepErrorf(LookupFailure, pos, "no instruction in %s at or after %#x", fn.Name, dest)
	}
	c.Addr, c.Index = next.Position().Addr, next.Position().Index
	return nil
}

// executeReturn resumes at the most recent return address. A return with an
// empty call stack blocks the cursor.
func (e *Executor) executeReturn(c *Cursor) error {
	ret, ok := c.PopCall()
	if !ok {
		e.Logger.Debug("return with empty call stack", log.Pos(c.Addr, c.Index))
		c.Status = StatusBlocked
		return nil
	}
	return e.seek(c, ret)
}

// executeGoto positions the cursor one before the target so the sequential
// advance lands on it.
func (e *Executor) executeGoto(c *Cursor, fn *ir.Function, inst *ir.Goto) error {
	c.Index = inst.Target - 1
	e.advance(c, fn)
	return nil
}

// seek moves the cursor to the first instruction at addr.
func (e *Executor) seek(c *Cursor, addr uint64) error {
	inst, ok := e.Program.InstructionAt(addr)
	if !ok {
		return stepErrorf(LookupFailure, c.Pos(), "no instruction at %#x", addr)
	}
	c.Addr, c.Index = inst.Position().Addr, inst.Position().Index
	return nil
}

// advance moves the cursor to the next IL index. The address follows the
// instruction at that index when one exists; otherwise the next fetch falls
// back to the call stack.
func (e *Executor) advance(c *Cursor, fn *ir.Function) {
	c.Index++
	if next, ok := e.Program.InstructionAtIndex(fn, c.Index); ok {
		c.Addr = next.Position().Addr
	}
}
