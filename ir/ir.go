// Package ir defines the low-level intermediate representation consumed by
// the lilt engines: expressions, instructions and the Program collaborator
// that supplies them.
package ir

import (
	"fmt"
	"strings"
)

// Expr represents an IR expression tree.
type Expr interface {
	String() string
	expr()
}

func (*Register) expr()  {}
func (*Constant) expr()  {}
func (*Flag) expr()      {}
func (*Load) expr()      {}
func (*Binary) expr()    {}
func (*DivHi) expr()     {}
func (*Undefined) expr() {}

// Register reads a named register.
type Register struct {
	Name string
}

// Reg returns a register expression.
func Reg(name string) *Register { return &Register{Name: name} }

func (e *Register) String() string { return e.Name }

// Constant is a 64-bit literal.
type Constant struct {
	Value uint64
}

// Const returns a constant expression.
func Const(v uint64) *Constant { return &Constant{Value: v} }

func (e *Constant) String() string { return fmt.Sprintf("%#x", e.Value) }

// Flag reads a named condition flag.
type Flag struct {
	Name string
}

func (e *Flag) String() string { return "flag:" + e.Name }

// Load reads the 64-bit word at an address.
type Load struct {
	Addr Expr
}

func (e *Load) String() string { return fmt.Sprintf("[%s]", e.Addr) }

// Op represents a binary operation.
type Op int

// Binary operations.
const (
	arithmetic_op_begin = Op(iota)
	Add
	Sub
	And
	Or
	Xor
	Mul
	Divu
	Divs
	Modu
	Mods
	Lsl
	Lsr
	Asr
	Rol
	Ror
	MulHiS
	MulHiU
	arithmetic_op_end

	compare_op_begin
	CmpE
	CmpNe
	CmpSlt
	CmpSle
	CmpSge
	CmpSgt
	CmpUlt
	CmpUle
	CmpUge
	CmpUgt
	compare_op_end
)

var ops = [...]string{
	Add:    "add",
	Sub:    "sub",
	And:    "and",
	Or:     "or",
	Xor:    "xor",
	Mul:    "mul",
	Divu:   "divu",
	Divs:   "divs",
	Modu:   "modu",
	Mods:   "mods",
	Lsl:    "lsl",
	Lsr:    "lsr",
	Asr:    "asr",
	Rol:    "rol",
	Ror:    "ror",
	MulHiS: "mulhs",
	MulHiU: "mulhu",
	CmpE:   "cmp_e",
	CmpNe:  "cmp_ne",
	CmpSlt: "cmp_slt",
	CmpSle: "cmp_sle",
	CmpSge: "cmp_sge",
	CmpSgt: "cmp_sgt",
	CmpUlt: "cmp_ult",
	CmpUle: "cmp_ule",
	CmpUge: "cmp_uge",
	CmpUgt: "cmp_ugt",
}

// String returns the listing name of the operation.
func (op Op) String() string {
	if op >= 0 && op < Op(len(ops)) && ops[op] != "" {
		return ops[op]
	}
	return fmt.Sprintf("Op<%d>", op)
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op Op) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op Op) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// Binary applies Op to two operands.
type Binary struct {
	Op  Op
	LHS Expr
	RHS Expr
}

// Bin returns a binary expression.
func Bin(op Op, lhs, rhs Expr) *Binary { return &Binary{Op: op, LHS: lhs, RHS: rhs} }

func (e *Binary) String() string { return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS) }

// DivHiOp represents a double-precision division operation.
type DivHiOp int

// Double-precision division operations.
const (
	DivsDp = DivHiOp(iota + 1)
	DivuDp
	ModsDp
	ModuDp
)

var divHiOps = [...]string{
	DivsDp: "divs_dp",
	DivuDp: "divu_dp",
	ModsDp: "mods_dp",
	ModuDp: "modu_dp",
}

func (op DivHiOp) String() string {
	if op > 0 && op < DivHiOp(len(divHiOps)) {
		return divHiOps[op]
	}
	return fmt.Sprintf("DivHiOp<%d>", op)
}

// Signed returns true for the signed variants.
func (op DivHiOp) Signed() bool { return op == DivsDp || op == ModsDp }

// Remainder returns true for the modulo variants.
func (op DivHiOp) Remainder() bool { return op == ModsDp || op == ModuDp }

// DivHi divides the 128-bit value High:Low by Divisor.
type DivHi struct {
	Op      DivHiOp
	High    Expr
	Low     Expr
	Divisor Expr
}

func (e *DivHi) String() string {
	return fmt.Sprintf("(%s %s:%s %s)", e.Op, e.High, e.Low, e.Divisor)
}

// Undefined marks an expression the lifter could not model.
type Undefined struct {
	Text string
}

func (e *Undefined) String() string { return fmt.Sprintf("undefined(%q)", e.Text) }

// Pos identifies an instruction site: the machine address plus the
// function-level IL index.
type Pos struct {
	Addr  uint64
	Index int
}

// Position returns p. Embedding Pos satisfies part of the Inst interface.
func (p Pos) Position() Pos { return p }

func (p Pos) String() string { return fmt.Sprintf("%#x:%d", p.Addr, p.Index) }

// Inst represents one IR instruction.
type Inst interface {
	Position() Pos
	String() string
	inst()
}

func (*SetRegister) inst()       {}
func (*SetRegisterSplit) inst()  {}
func (*SetFlag) inst()           {}
func (*Store) inst()             {}
func (*Push) inst()              {}
func (*Jump) inst()              {}
func (*IndirectJump) inst()      {}
func (*Call) inst()              {}
func (*Return) inst()            {}
func (*ConditionalBranch) inst() {}
func (*Goto) inst()              {}
func (*Nop) inst()               {}
func (*NoReturn) inst()          {}
func (*Syscall) inst()           {}
func (*Breakpoint) inst()        {}
func (*Trap) inst()              {}
func (*UndefinedInst) inst()     {}

type SetRegister struct {
	Pos
	Reg  string
	Expr Expr
}

func (i *SetRegister) String() string { return fmt.Sprintf("%s = %s", i.Reg, i.Expr) }

// SetRegisterSplit writes the upper 32 bits of Expr to High and the lower
// 32 bits to Low.
type SetRegisterSplit struct {
	Pos
	High string
	Low  string
	Expr Expr
}

func (i *SetRegisterSplit) String() string {
	return fmt.Sprintf("%s:%s = %s", i.High, i.Low, i.Expr)
}

type SetFlag struct {
	Pos
	Flag string
	Expr Expr
}

func (i *SetFlag) String() string { return fmt.Sprintf("flag:%s = %s", i.Flag, i.Expr) }

type Store struct {
	Pos
	Dest  Expr
	Value Expr
}

func (i *Store) String() string { return fmt.Sprintf("[%s] = %s", i.Dest, i.Value) }

// Push stores Expr at rsp and then decrements rsp by 8.
type Push struct {
	Pos
	Expr Expr
}

func (i *Push) String() string { return fmt.Sprintf("push(%s)", i.Expr) }

type Jump struct {
	Pos
	Target uint64
}

func (i *Jump) String() string { return fmt.Sprintf("jump(%#x)", i.Target) }

type IndirectJump struct {
	Pos
	Target Expr
}

func (i *IndirectJump) String() string { return fmt.Sprintf("jump(%s)", i.Target) }

type Call struct {
	Pos
	Target Expr
}

func (i *Call) String() string { return fmt.Sprintf("call(%s)", i.Target) }

type Return struct {
	Pos
}

func (i *Return) String() string { return "return" }

type ConditionalBranch struct {
	Pos
	Cond  Expr
	True  uint64
	False uint64
}

func (i *ConditionalBranch) String() string {
	return fmt.Sprintf("if (%s) then %#x else %#x", i.Cond, i.True, i.False)
}

// Goto transfers control to an IL index within the current function.
type Goto struct {
	Pos
	Target int
}

func (i *Goto) String() string { return fmt.Sprintf("goto %d", i.Target) }

type Nop struct{ Pos }

func (i *Nop) String() string { return "nop" }

type NoReturn struct{ Pos }

func (i *NoReturn) String() string { return "noreturn" }

type Syscall struct{ Pos }

func (i *Syscall) String() string { return "syscall" }

type Breakpoint struct{ Pos }

func (i *Breakpoint) String() string { return "bp" }

type Trap struct{ Pos }

func (i *Trap) String() string { return "trap" }

// UndefinedInst marks an instruction the lifter could not model.
type UndefinedInst struct {
	Pos
	Text string
}

func (i *UndefinedInst) String() string {
	if i.Text == "" {
		return "undefined"
	}
	return fmt.Sprintf("undefined(%q)", strings.TrimSpace(i.Text))
}
