// Package native runs x86-64 machine code under the Unicorn CPU emulator so
// that the IR engines can be checked against real execution.
package native

import (
	"sort"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"go.uber.org/zap"
	"golang.org/x/arch/x86/x86asm"
)

const (
	PageSize = 0x1000

	DefaultStackSize = 0x100000 // 1MB stack
)

var (
	// ErrExited is returned when the native program has run past the end of
	// its code.
	ErrExited = errors.New("native: program exited")

	// ErrUnknownRegister is returned for a register name with no Unicorn
	// equivalent.
	ErrUnknownRegister = errors.New("native: unknown register")
)

// Debugger controls a native execution of the program under analysis.
type Debugger interface {
	SetBreakpoint(addr uint64)
	ClearBreakpoint(addr uint64)

	// Continue runs until a breakpoint is reached or the program exits.
	Continue() error

	// StepInto executes exactly one machine instruction.
	StepInto() error

	PC() (uint64, error)
	Register(name string) (uint64, error)
	SetRegister(name string, value uint64) error
	Exited() bool
	Close() error
}

var _ Debugger = (*Emulator)(nil)

// x86-64 register names understood by the emulator.
var registers = map[string]int{
	"rax":    uc.X86_REG_RAX,
	"rbx":    uc.X86_REG_RBX,
	"rcx":    uc.X86_REG_RCX,
	"rdx":    uc.X86_REG_RDX,
	"rsi":    uc.X86_REG_RSI,
	"rdi":    uc.X86_REG_RDI,
	"rbp":    uc.X86_REG_RBP,
	"rsp":    uc.X86_REG_RSP,
	"r8":     uc.X86_REG_R8,
	"r9":     uc.X86_REG_R9,
	"r10":    uc.X86_REG_R10,
	"r11":    uc.X86_REG_R11,
	"r12":    uc.X86_REG_R12,
	"r13":    uc.X86_REG_R13,
	"r14":    uc.X86_REG_R14,
	"r15":    uc.X86_REG_R15,
	"rip":    uc.X86_REG_RIP,
	"rflags": uc.X86_REG_EFLAGS,
}

// Registers returns the register names the emulator can read, sorted.
func Registers() []string {
	a := make([]string, 0, len(registers))
	for name := range registers {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

// Options configures the memory layout of an Emulator.
type Options struct {
	StackPointer uint64
	StackSize    uint64
	Logger       *log.Logger
}

// Emulator is a Debugger backed by Unicorn in x86-64 mode.
type Emulator struct {
	mu uc.Unicorn

	base, end   uint64 // code range
	breakpoints map[uint64]struct{}
	resuming    bool // skip the breakpoint check for the first instruction
	exited      bool

	logger *log.Logger
}

// New maps code at base and a stack below opt.StackPointer, then positions
// the program counter at entry.
func New(code []byte, base, entry uint64, opt Options) (*Emulator, error) {
	if opt.StackPointer == 0 {
		opt.StackPointer = lilt.DefaultStackPointer
	}
	if opt.StackSize == 0 {
		opt.StackSize = DefaultStackSize
	}

	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, errors.Wrap(err, "create unicorn")
	}

	e := &Emulator{
		mu:          mu,
		base:        base,
		end:         base + uint64(len(code)),
		breakpoints: make(map[uint64]struct{}),
		logger:      log.OrNop(opt.Logger),
	}
	if err := e.init(code, entry, opt); err != nil {
		mu.Close()
		return nil, err
	}
	return e, nil
}

func (e *Emulator) init(code []byte, entry uint64, opt Options) error {
	codeStart, codeEnd := alignDown(e.base), alignUp(e.end)
	if err := e.mu.MemMap(codeStart, codeEnd-codeStart); err != nil {
		return errors.Wrapf(err, "map code (%#x)", codeStart)
	}
	if err := e.mu.MemWrite(e.base, code); err != nil {
		return errors.Wrap(err, "write code")
	}

	stackTop := alignUp(opt.StackPointer)
	stackBase := stackTop - alignUp(opt.StackSize)
	if stackBase < codeEnd && codeStart < stackTop {
		return errors.Errorf("stack %#x-%#x overlaps code %#x-%#x", stackBase, stackTop, codeStart, codeEnd)
	}
	if err := e.mu.MemMap(stackBase, stackTop-stackBase); err != nil {
		return errors.Wrapf(err, "map stack (%#x)", stackBase)
	}
	if err := e.mu.RegWrite(uc.X86_REG_RSP, opt.StackPointer); err != nil {
		return errors.Wrap(err, "set rsp")
	}
	if err := e.mu.RegWrite(uc.X86_REG_RIP, entry); err != nil {
		return errors.Wrap(err, "set rip")
	}

	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.resuming {
			e.resuming = false
			return
		}
		if _, ok := e.breakpoints[addr]; ok {
			e.logger.Debug("breakpoint", log.Addr(addr))
			mu.Stop()
		}
	}, 1, 0)
	return err
}

// Close releases the Unicorn instance.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// SetBreakpoint stops execution before the instruction at addr runs.
func (e *Emulator) SetBreakpoint(addr uint64) {
	e.breakpoints[addr] = struct{}{}
}

// ClearBreakpoint removes a breakpoint set with SetBreakpoint.
func (e *Emulator) ClearBreakpoint(addr uint64) {
	delete(e.breakpoints, addr)
}

// Continue runs from the current program counter. A breakpoint at the
// current address is stepped over.
func (e *Emulator) Continue() error {
	return e.run(0)
}

// StepInto executes one instruction, ignoring breakpoints.
func (e *Emulator) StepInto() error {
	return e.run(1)
}

func (e *Emulator) run(count uint64) error {
	if e.exited {
		return ErrExited
	}
	pc, err := e.PC()
	if err != nil {
		return err
	}

	e.resuming = true
	if count == 0 {
		err = e.mu.Start(pc, e.end)
	} else {
		err = e.mu.StartWithOptions(pc, e.end, &uc.UcOptions{Count: count})
	}
	e.resuming = false
	if err != nil {
		return errors.Wrapf(err, "native: run from %#x", pc)
	}

	if pc, err = e.PC(); err != nil {
		return err
	} else if pc < e.base || pc >= e.end {
		e.exited = true
	}
	e.logger.Debug("native stopped", log.Addr(pc), zap.Bool("exited", e.exited))
	return nil
}

// Exited returns true once execution has left the code range.
func (e *Emulator) Exited() bool { return e.exited }

// PC returns the current instruction pointer.
func (e *Emulator) PC() (uint64, error) {
	return e.mu.RegRead(uc.X86_REG_RIP)
}

// Register returns the value of a named register.
func (e *Emulator) Register(name string) (uint64, error) {
	reg, ok := registers[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownRegister, "register %q", name)
	}
	return e.mu.RegRead(reg)
}

// SetRegister writes a named register.
func (e *Emulator) SetRegister(name string, value uint64) error {
	reg, ok := registers[name]
	if !ok {
		return errors.Wrapf(ErrUnknownRegister, "register %q", name)
	}
	return e.mu.RegWrite(reg, value)
}

// LoadState copies the general-purpose registers of s into the emulator.
// The program counter and flags are left alone.
func (e *Emulator) LoadState(s *lilt.State) error {
	for _, r := range s.Registers() {
		if _, ok := registers[r.Name]; !ok || r.Name == "rip" || r.Name == "rflags" {
			continue
		}
		if err := e.SetRegister(r.Name, r.Value); err != nil {
			return err
		}
	}
	return nil
}

// Disassemble decodes the instruction at addr and returns it in Intel
// syntax along with its length.
func (e *Emulator) Disassemble(addr uint64) (string, int, error) {
	if addr < e.base || addr >= e.end {
		return "", 0, errors.Errorf("native: address %#x outside code", addr)
	}
	n := e.end - addr
	if n > 15 {
		n = 15
	}
	buf, err := e.mu.MemRead(addr, n)
	if err != nil {
		return "", 0, err
	}
	return Disassemble(buf, addr)
}

// Disassemble decodes the first x86-64 instruction in code.
func Disassemble(code []byte, addr uint64) (string, int, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", 0, errors.Wrapf(err, "native: decode at %#x", addr)
	}
	return x86asm.IntelSyntax(inst, addr, nil), inst.Len, nil
}

func alignDown(v uint64) uint64 { return v &^ (PageSize - 1) }
func alignUp(v uint64) uint64   { return (v + PageSize - 1) &^ (PageSize - 1) }
