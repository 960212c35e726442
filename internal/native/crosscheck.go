package native

import (
	"context"
	"fmt"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// General-purpose registers compared by default. The instruction pointer
// and flags are not modelled the same way by the emulator.
var DefaultCheckRegisters = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Mismatch is a register whose emulated value differs from the native value
// at the start of a machine instruction.
type Mismatch struct {
	Pos      ir.Pos
	Reg      string
	Emulated uint64
	Native   uint64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: emulated=%s native=%s", m.Pos, m.Reg, log.Hex(m.Emulated), log.Hex(m.Native))
}

// CrossChecker steps an emulated state alongside a native Debugger and
// compares registers every time the state reaches a new machine
// instruction.
type CrossChecker struct {
	Exec      *lilt.Executor
	Debugger  Debugger
	Registers []string
	Logger    *log.Logger

	// Number of machine instructions compared so far.
	Checked int
}

// NewCrossChecker returns a checker comparing DefaultCheckRegisters.
func NewCrossChecker(exec *lilt.Executor, dbg Debugger, logger *log.Logger) *CrossChecker {
	return &CrossChecker{
		Exec:      exec,
		Debugger:  dbg,
		Registers: DefaultCheckRegisters,
		Logger:    log.OrNop(logger),
	}
}

// Run executes up to n IR steps of s and returns every mismatch found.
// Checking stops early when the state blocks or the native program exits.
func (c *CrossChecker) Run(ctx context.Context, s *lilt.State, n int) ([]Mismatch, error) {
	var mismatches []Mismatch
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return mismatches, err
		} else if s.Terminated() {
			break
		}

		if c.atMachineBoundary(s) {
			if err := c.runTo(s.Addr); errors.Is(err, ErrExited) {
				c.Logger.Info("native program exited", log.Addr(s.Addr))
				break
			} else if err != nil {
				return mismatches, err
			}

			a, err := c.compare(s)
			if err != nil {
				return mismatches, err
			}
			mismatches = append(mismatches, a...)
			c.Checked++
		}

		if err := c.Exec.Step(s); errors.Is(err, lilt.ErrStateBlocked) {
			break
		} else if err != nil {
			return mismatches, err
		}
	}
	return mismatches, nil
}

// atMachineBoundary returns true if s is positioned on the first IL
// instruction lifted from its machine address.
func (c *CrossChecker) atMachineBoundary(s *lilt.State) bool {
	inst, ok := c.Exec.Program.InstructionAt(s.Addr)
	return ok && inst.Position().Index == s.Index
}

// runTo advances the native program until its PC equals addr.
func (c *CrossChecker) runTo(addr uint64) error {
	if pc, err := c.Debugger.PC(); err != nil {
		return err
	} else if pc == addr {
		return nil
	}

	c.Debugger.SetBreakpoint(addr)
	defer c.Debugger.ClearBreakpoint(addr)

	if err := c.Debugger.Continue(); err != nil {
		return err
	} else if c.Debugger.Exited() {
		return ErrExited
	}

	if pc, err := c.Debugger.PC(); err != nil {
		return err
	} else if pc != addr {
		return errors.Errorf("native: stopped at %#x, expected %#x", pc, addr)
	}
	return nil
}

func (c *CrossChecker) compare(s *lilt.State) ([]Mismatch, error) {
	var a []Mismatch
	for _, name := range c.Registers {
		nv, err := c.Debugger.Register(name)
		if err != nil {
			return nil, err
		}
		if ev := s.Register(name); ev != nv {
			m := Mismatch{Pos: s.Pos(), Reg: name, Emulated: ev, Native: nv}
			c.Logger.Warn("register mismatch",
				log.Pos(m.Pos.Addr, m.Pos.Index),
				log.Reg(name),
				zap.String("emulated", log.Hex(ev)),
				zap.String("native", log.Hex(nv)),
			)
			a = append(a, m)
		}
	}
	return a, nil
}
