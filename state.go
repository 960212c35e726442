package lilt

import (
	"bytes"
	"fmt"

	"github.com/benbjohnson/immutable"
	"github.com/benbjohnson/lilt/ir"
)

// Registers with a dedicated slot in every state. Any other register name
// is kept in an overflow map.
var defaultRegisters = [...]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "rbp", "rflags", "rsp",
}

var registerSlots = func() map[string]int {
	m := make(map[string]int, len(defaultRegisters))
	for i, name := range defaultRegisters {
		m[name] = i
	}
	return m
}()

// Status represents the current status of a state.
type Status string

const (
	StatusRunning  = Status("running")  // has a next instruction
	StatusReturned = Status("returned") // resumed from the call stack after running off a function
	StatusBlocked  = Status("blocked")  // no instruction and nothing to return to
)

// Cursor tracks the program position and call stack of a state.
type Cursor struct {
	Addr      uint64
	Index     int
	Status    Status
	CallStack []uint64
}

// Pos returns the current program position.
func (c *Cursor) Pos() ir.Pos { return ir.Pos{Addr: c.Addr, Index: c.Index} }

// Terminated returns true if the state can no longer step.
func (c *Cursor) Terminated() bool { return c.Status == StatusBlocked }

// PushCall records a return address.
func (c *Cursor) PushCall(addr uint64) {
	c.CallStack = append(c.CallStack, addr)
}

// PopCall removes and returns the most recent return address.
func (c *Cursor) PopCall() (uint64, bool) {
	if len(c.CallStack) == 0 {
		return 0, false
	}
	addr := c.CallStack[len(c.CallStack)-1]
	c.CallStack = c.CallStack[:len(c.CallStack)-1]
	return addr, true
}

func (c *Cursor) clone() Cursor {
	other := *c
	other.CallStack = make([]uint64, len(c.CallStack))
	copy(other.CallStack, c.CallStack)
	return other
}

// State is the concrete machine state of one run. States are never shared;
// Clone produces an independent copy.
type State struct {
	Cursor

	regs     [len(defaultRegisters)]uint64
	overflow *immutable.SortedMap // register name -> uint64
	flags    *immutable.SortedMap // flag name -> uint64
	memory   *immutable.SortedMap // address -> uint64

	// Simulated standard input.
	Stdin string
}

// NewState returns a state with the x86-64 default register values and
// the stack pointer set to sp.
func NewState(sp uint64) *State {
	s := &State{
		Cursor:   Cursor{Status: StatusRunning},
		overflow: immutable.NewSortedMap(&stringComparer{}),
		flags:    immutable.NewSortedMap(&stringComparer{}),
		memory:   immutable.NewSortedMap(&uint64Comparer{}),
	}
	for i, name := range defaultRegisters {
		s.regs[i] = defaultRegisterValue(name, i)
	}
	s.regs[registerSlots["rsp"]] = sp
	return s
}

// defaultRegisterValue returns the seed value for a default register. The
// general-purpose registers and rip/rbp count up from 1 in slot order so
// that uninitialised reads are recognisable.
func defaultRegisterValue(name string, slot int) uint64 {
	switch name {
	case "rflags", "rsp":
		return 0
	default:
		return uint64(slot + 1)
	}
}

// Clone returns an independent copy of the state. Register, flag and memory
// maps are persistent so only the call stack is copied.
func (s *State) Clone() *State {
	other := *s
	other.Cursor = s.Cursor.clone()
	return &other
}

// Register returns the value of a register. Unknown overflow registers read
// as zero.
func (s *State) Register(name string) uint64 {
	if i, ok := registerSlots[name]; ok {
		return s.regs[i]
	}
	if v, ok := s.overflow.Get(name); ok {
		return v.(uint64)
	}
	return 0
}

// SetRegister sets the value of a register.
func (s *State) SetRegister(name string, value uint64) {
	if i, ok := registerSlots[name]; ok {
		s.regs[i] = value
		return
	}
	s.overflow = s.overflow.Set(name, value)
}

// Flag returns the value of a condition flag.
func (s *State) Flag(name string) uint64 {
	if v, ok := s.flags.Get(name); ok {
		return v.(uint64)
	}
	return 0
}

// SetFlag sets the value of a condition flag.
func (s *State) SetFlag(name string, value uint64) {
	s.flags = s.flags.Set(name, value)
}

// Load returns the word stored at addr, or zero if nothing was stored.
func (s *State) Load(addr uint64) uint64 {
	if v, ok := s.memory.Get(addr); ok {
		return v.(uint64)
	}
	return 0
}

// Store writes a word to addr.
func (s *State) Store(addr, value uint64) {
	s.memory = s.memory.Set(addr, value)
}

// Push stores value at rsp and moves rsp down one word.
func (s *State) Push(value uint64) {
	sp := s.Register("rsp")
	s.Store(sp, value)
	s.SetRegister("rsp", sp-WordSize)
}

// SetConcreteRegister implements Machine.
func (s *State) SetConcreteRegister(name string, value uint64) { s.SetRegister(name, value) }

// SetStdin implements Machine.
func (s *State) SetStdin(v string) { s.Stdin = v }

// RegisterString implements Machine.
func (s *State) RegisterString(name string) string { return fmt.Sprintf("%#x", s.Register(name)) }

// RegisterValue is a named register value.
type RegisterValue struct {
	Name  string
	Value uint64
}

// Registers returns the default registers in slot order followed by
// overflow registers sorted by name.
func (s *State) Registers() []RegisterValue {
	a := make([]RegisterValue, 0, len(defaultRegisters)+s.overflow.Len())
	for i, name := range defaultRegisters {
		a = append(a, RegisterValue{Name: name, Value: s.regs[i]})
	}
	itr := s.overflow.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			break
		}
		a = append(a, RegisterValue{Name: k.(string), Value: v.(uint64)})
	}
	return a
}

// Flags returns all flags sorted by name.
func (s *State) Flags() []RegisterValue {
	a := make([]RegisterValue, 0, s.flags.Len())
	itr := s.flags.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, RegisterValue{Name: k.(string), Value: v.(uint64)})
	}
}

// MemoryValue is a stored word.
type MemoryValue struct {
	Addr  uint64
	Value uint64
}

// Memory returns all stored words in address order.
func (s *State) Memory() []MemoryValue {
	a := make([]MemoryValue, 0, s.memory.Len())
	itr := s.memory.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, MemoryValue{Addr: k.(uint64), Value: v.(uint64)})
	}
}

// Dump returns the contents of the state as a string.
func (s *State) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "STATE")
	fmt.Fprintln(&buf, "=====")
	fmt.Fprintf(&buf, "status=%s\n", s.Status)
	fmt.Fprintf(&buf, "pos=%s\n", s.Pos())
	fmt.Fprintf(&buf, "stdin=%q\n", s.Stdin)
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== REGISTERS")
	for _, r := range s.Registers() {
		fmt.Fprintf(&buf, "%-8s %#016x\n", r.Name, r.Value)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== FLAGS")
	for _, f := range s.Flags() {
		fmt.Fprintf(&buf, "%-8s %d\n", f.Name, f.Value)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== MEMORY")
	for _, m := range s.Memory() {
		fmt.Fprintf(&buf, "%#016x %#016x\n", m.Addr, m.Value)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CALL STACK")
	for i := len(s.CallStack) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "#%d %#x\n", i, s.CallStack[i])
	}
	return buf.String()
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not a uint64.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

func (c *stringComparer) Compare(a, b interface{}) int {
	if i, j := a.(string), b.(string); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
