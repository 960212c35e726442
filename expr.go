package lilt

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/pkg/errors"
)

// Expr represents a bit-vector formula over symbolic inputs.
type Expr interface {
	String() string
	expr()
}

func (*BinaryExpr) expr()   {}
func (*CastExpr) expr()     {}
func (*ConcatExpr) expr()   {}
func (*ConstantExpr) expr() {}
func (*ExtractExpr) expr()  {}
func (*NotExpr) expr()      {}
func (*SymbolExpr) expr()   {}

// ExprWidth returns the bit width of the expression.
func ExprWidth(expr Expr) uint {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Width
	case *SymbolExpr:
		return expr.Width
	case *ConcatExpr:
		return ExprWidth(expr.MSB) + ExprWidth(expr.LSB)
	case *ExtractExpr:
		return expr.Width
	case *NotExpr:
		return ExprWidth(expr.Expr)
	case *CastExpr:
		return expr.Width
	case *BinaryExpr:
		if expr.Op.IsCompare() {
			return WidthBool
		}
		return ExprWidth(expr.LHS)
	default:
		panic("unreachable")
	}
}

// BVKind classifies a formula by how much of it is known.
type BVKind int

const (
	Concrete   = BVKind(iota + 1) // a constant
	Symbolic                      // a bare symbol
	Expression                    // an operation with at least one unknown input
)

func (k BVKind) String() string {
	switch k {
	case Concrete:
		return "concrete"
	case Symbolic:
		return "symbolic"
	case Expression:
		return "expression"
	default:
		return fmt.Sprintf("BVKind<%d>", int(k))
	}
}

// KindOf returns the kind of expr.
func KindOf(expr Expr) BVKind {
	switch expr.(type) {
	case *ConstantExpr:
		return Concrete
	case *SymbolExpr:
		return Symbolic
	default:
		return Expression
	}
}

// BinaryOp represents a binary expression operations.
type BinaryOp int

// BinaryExpr operations.
const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	UDIV
	SDIV
	UREM
	SREM
	AND
	OR
	XOR
	SHL
	LSHR
	ASHR
	ROTL
	ROTR
	arithmetic_op_end

	compare_op_begin
	EQ
	NE
	ULT
	ULE
	UGT
	UGE
	SLT
	SLE
	SGT
	SGE
	compare_op_end
)

var binaryOps = [...]string{
	ADD:  "add",
	SUB:  "sub",
	MUL:  "mul",
	UDIV: "udiv",
	SDIV: "sdiv",
	UREM: "urem",
	SREM: "srem",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	SHL:  "shl",
	LSHR: "lshr",
	ASHR: "ashr",
	ROTL: "rotl",
	ROTR: "rotr",
	EQ:   "eq",
	NE:   "ne",
	ULT:  "ult",
	ULE:  "ule",
	UGT:  "ugt",
	UGE:  "uge",
	SLT:  "slt",
	SLE:  "sle",
	SGT:  "sgt",
	SGE:  "sge",
}

// String returns the string representation of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op BinaryOp) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// IsCommutative returns true if the operands of op can be swapped.
func (op BinaryOp) IsCommutative() bool {
	switch op {
	case ADD, MUL, AND, OR, XOR, EQ:
		return true
	default:
		return false
	}
}

// BinaryExpr represents an operation on two expressions.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

// NewBinaryExpr returns a new expression for op applied to lhs & rhs.
//
// Operands are only combined when both are constant. An operation with any
// non-constant input always produces a BinaryExpr, even when the result is
// algebraically fixed (e.g. x*0), so symbolic inputs are never dropped from
// a formula.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	assert(ExprWidth(lhs) == ExprWidth(rhs), "binary expr width mismatch: op=%s %d != %d", op, ExprWidth(lhs), ExprWidth(rhs))

	// Normalize comparisons to a smaller operator set.
	switch op {
	case NE:
		return NewBinaryExpr(EQ, NewBoolConstantExpr(false), NewBinaryExpr(EQ, lhs, rhs))
	case UGT:
		return NewBinaryExpr(ULT, rhs, lhs)
	case UGE:
		return NewBinaryExpr(ULE, rhs, lhs)
	case SGT:
		return NewBinaryExpr(SLT, rhs, lhs)
	case SGE:
		return NewBinaryExpr(SLE, rhs, lhs)
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok && lhs.Width <= Width64 {
			return lhs.apply(op, rhs)
		}
	}

	// Commutative operands are kept in CompareExpr order.
	if op.IsCommutative() && CompareExpr(lhs, rhs) > 0 {
		lhs, rhs = rhs, lhs
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

// String returns the string representation of the expression.
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// ConcatExpr represents a concatenation of two expressions.
type ConcatExpr struct {
	MSB Expr
	LSB Expr
}

// NewConcatExpr returns a new instance of ConcatExpr.
func NewConcatExpr(msb, lsb Expr) Expr {
	// Combine expressions if they are both constants and still fit a word.
	if msb, ok := msb.(*ConstantExpr); ok {
		if lsb, ok := lsb.(*ConstantExpr); ok && msb.Width+lsb.Width <= Width64 {
			return msb.Concat(lsb)
		}
	}

	// Combine extract expressions if they are contiguous.
	if msb, ok := msb.(*ExtractExpr); ok {
		if lsb, ok := lsb.(*ExtractExpr); ok {
			if msb.Expr == lsb.Expr && lsb.Offset+lsb.Width == msb.Offset {
				return NewExtractExpr(msb.Expr, lsb.Offset, msb.Width+lsb.Width)
			}
		}
	}

	return &ConcatExpr{MSB: msb, LSB: lsb}
}

// String returns the string representation of the expression.
func (e *ConcatExpr) String() string {
	return fmt.Sprintf("(concat %s %s)", e.MSB, e.LSB)
}

// ExtractExpr represents the extraction of a set of bits at a given offset/width.
type ExtractExpr struct {
	Expr   Expr
	Offset uint
	Width  uint
}

// NewExtractExpr returns a new instance of ExtractExpr.
func NewExtractExpr(expr Expr, offset uint, width uint) Expr {
	kw := ExprWidth(expr)
	assert(width > 0, "extract width cannot be zero")
	assert(offset+width <= kw, "extract out of bounds: %d+%d > %d", width, offset, kw)

	if width == kw {
		return expr
	} else if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Extract(offset, width)
	}

	// Extract(Concat)
	if expr, ok := expr.(*ConcatExpr); ok {
		lw := ExprWidth(expr.LSB)

		// Directly extract from MSB if we skip over LSB.
		if offset >= lw {
			return NewExtractExpr(expr.MSB, offset-lw, width)
		}

		// Directly extract from LSB if we skip over MSB.
		if offset+width <= lw {
			return NewExtractExpr(expr.LSB, offset, width)
		}

		// E(C(x,y)) = C(E(x), E(y))
		return NewConcatExpr(
			NewExtractExpr(expr.MSB, 0, offset+width-lw),
			NewExtractExpr(expr.LSB, offset, lw-offset),
		)
	}

	return &ExtractExpr{Expr: expr, Offset: offset, Width: width}
}

// String returns the string representation of the expression.
func (e *ExtractExpr) String() string {
	return fmt.Sprintf("(extract %s %d %d)", e.Expr, e.Offset, e.Width)
}

// NotExpr represents a bitwise not of an expression.
type NotExpr struct {
	Expr Expr
}

// NewNotExpr returns a new instance of NotExpr.
func NewNotExpr(expr Expr) Expr {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Not()
	}
	return &NotExpr{Expr: expr}
}

// String returns the string representation of the expression.
func (e *NotExpr) String() string {
	return fmt.Sprintf("(not %s)", e.Expr)
}

// CastExpr represents an expression that casts an expression to a new width.
type CastExpr struct {
	Src    Expr
	Width  uint
	Signed bool
}

// NewCastExpr returns a new instance of CastExpr.
func NewCastExpr(src Expr, width uint, signed bool) Expr {
	sw := ExprWidth(src)
	if width == sw { // nop
		return src
	} else if width < sw { // truncate
		return NewExtractExpr(src, 0, width)
	} else if src, ok := src.(*ConstantExpr); ok && width <= Width64 {
		if signed {
			return src.SExt(width)
		}
		return src.ZExt(width)
	}
	return &CastExpr{Src: src, Width: width, Signed: signed}
}

// String returns the string representation of the expression.
func (e *CastExpr) String() string {
	if e.Signed {
		return fmt.Sprintf("(sext %s %d)", e.Src, e.Width)
	}
	return fmt.Sprintf("(zext %s %d)", e.Src, e.Width)
}

// SymbolExpr represents an unknown input such as an initial register value
// or a word loaded from a symbolic address.
type SymbolExpr struct {
	ID    uint64
	Name  string
	Width uint
}

// NewSymbolExpr returns a new instance of SymbolExpr.
func NewSymbolExpr(id uint64, name string, width uint) *SymbolExpr {
	return &SymbolExpr{ID: id, Name: name, Width: width}
}

// QualifiedName returns the name suffixed with the symbol ID, e.g. "rax!3".
func (e *SymbolExpr) QualifiedName() string {
	return fmt.Sprintf("%s!%d", e.Name, e.ID)
}

// String returns the string representation of the expression.
func (e *SymbolExpr) String() string {
	return fmt.Sprintf("(sym #%d %s %d)", e.ID, e.Name, e.Width)
}

// ConstantExpr represents an integer of up to 64 bits.
type ConstantExpr struct {
	Value uint64
	Width uint
}

// NewConstantExpr returns a new instance of ConstantExpr.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	return &ConstantExpr{
		Value: value & bitmask(width),
		Width: width,
	}
}

// NewConstantExpr64 returns a 64-bit constant expression.
func NewConstantExpr64(value uint64) *ConstantExpr {
	return NewConstantExpr(value, Width64)
}

// NewBoolConstantExpr is an ease of use function for creating constant boolean expressions.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Width: WidthBool}
	}
	return &ConstantExpr{Value: 0, Width: WidthBool}
}

// String returns the string representation of the expression.
func (e *ConstantExpr) String() string {
	return fmt.Sprintf("(const %d %d)", e.Value, e.Width)
}

// IsTrue returns true if this is a boolean true expression.
func (e *ConstantExpr) IsTrue() bool {
	return e.Width == WidthBool && e.Value != 0
}

// signed returns the value reinterpreted as a two's complement integer.
func (e *ConstantExpr) signed() int64 {
	if e.Width >= Width64 {
		return int64(e.Value)
	}
	shift := Width64 - e.Width
	return int64(e.Value<<shift) >> shift
}

// apply computes op over two constants of equal width. Division by zero
// yields zero. Shift amounts at or above the width shift every bit out.
func (e *ConstantExpr) apply(op BinaryOp, other *ConstantExpr) *ConstantExpr {
	assert(e.Width == other.Width, "%s: width mismatch: %d != %d", op, e.Width, other.Width)
	x, y, w := e.Value, other.Value, e.Width

	switch op {
	case ADD:
		return NewConstantExpr(x+y, w)
	case SUB:
		return NewConstantExpr(x-y, w)
	case MUL:
		return NewConstantExpr(x*y, w)
	case UDIV:
		if y == 0 {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x/y, w)
	case SDIV:
		if y == 0 {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(uint64(e.signed()/other.signed()), w)
	case UREM:
		if y == 0 {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x%y, w)
	case SREM:
		if y == 0 {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(uint64(e.signed()%other.signed()), w)
	case AND:
		return NewConstantExpr(x&y, w)
	case OR:
		return NewConstantExpr(x|y, w)
	case XOR:
		return NewConstantExpr(x^y, w)
	case SHL:
		if y >= uint64(w) {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x<<y, w)
	case LSHR:
		if y >= uint64(w) {
			return NewConstantExpr(0, w)
		}
		return NewConstantExpr(x>>y, w)
	case ASHR:
		if y >= uint64(w) {
			y = uint64(w) - 1
		}
		return NewConstantExpr(uint64(e.signed()>>y), w)
	case ROTL:
		return e.rotate(int(y % uint64(w)))
	case ROTR:
		return e.rotate(-int(y % uint64(w)))
	case EQ:
		return NewBoolConstantExpr(x == y)
	case NE:
		return NewBoolConstantExpr(x != y)
	case ULT:
		return NewBoolConstantExpr(x < y)
	case ULE:
		return NewBoolConstantExpr(x <= y)
	case UGT:
		return NewBoolConstantExpr(x > y)
	case UGE:
		return NewBoolConstantExpr(x >= y)
	case SLT:
		return NewBoolConstantExpr(e.signed() < other.signed())
	case SLE:
		return NewBoolConstantExpr(e.signed() <= other.signed())
	case SGT:
		return NewBoolConstantExpr(e.signed() > other.signed())
	case SGE:
		return NewBoolConstantExpr(e.signed() >= other.signed())
	default:
		panic(fmt.Sprintf("unexpected binary op: %s", op))
	}
}

// rotate rotates the value left by k bits within its width. Negative k
// rotates right.
func (e *ConstantExpr) rotate(k int) *ConstantExpr {
	if e.Width == Width64 {
		return NewConstantExpr(bits.RotateLeft64(e.Value, k), e.Width)
	}
	w := int(e.Width)
	k = ((k % w) + w) % w
	if k == 0 {
		return e
	}
	return NewConstantExpr(e.Value<<uint(k)|e.Value>>uint(w-k), e.Width)
}

// ZExt returns the zero-extension of e to a new width.
func (e *ConstantExpr) ZExt(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(e.Value, width)
}

// SExt returns the sign-extension of e to a new width.
func (e *ConstantExpr) SExt(width uint) *ConstantExpr {
	if e.Width == width {
		return e
	}
	return NewConstantExpr(uint64(e.signed()), width)
}

// Not returns the bitwise NOT of the expression.
func (e *ConstantExpr) Not() *ConstantExpr {
	return NewConstantExpr(^e.Value, e.Width)
}

// Extract returns width number of bits starting at offset.
func (e *ConstantExpr) Extract(offset, width uint) *ConstantExpr {
	return NewConstantExpr(e.Value>>offset, width)
}

// Concat returns the concatenation of e and lsb.
func (e *ConstantExpr) Concat(lsb *ConstantExpr) *ConstantExpr {
	return NewConstantExpr((e.Value<<lsb.Width)|lsb.Value, e.Width+lsb.Width)
}

func bitmask(width uint) uint64 {
	if width >= Width64 {
		return ^uint64(0)
	}
	return (1 << width) - 1
}

// IsConstantExpr returns true if expr is an instance of ConstantExpr.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is an instance of ConstantExpr and is true.
func IsConstantTrue(expr Expr) bool {
	tmp, ok := expr.(*ConstantExpr)
	return ok && tmp.IsTrue()
}

// NewIsZeroExpr returns an expression that checks the equality of other to zero.
func NewIsZeroExpr(other Expr) Expr {
	return NewBinaryExpr(EQ, other, NewConstantExpr(0, ExprWidth(other)))
}

// NewIsNonZeroExpr returns an expression that is true if other is not zero.
func NewIsNonZeroExpr(other Expr) Expr {
	return NewBinaryExpr(NE, other, NewConstantExpr(0, ExprWidth(other)))
}

// CompareExpr returns an integer comparing two expressions.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}

	if ak, bk := exprKind(a), exprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}

	switch a := a.(type) {
	case *ConstantExpr:
		return compareConstantExpr(a, b.(*ConstantExpr))
	case *SymbolExpr:
		return compareSymbolExpr(a, b.(*SymbolExpr))
	case *ConcatExpr:
		return compareConcatExpr(a, b.(*ConcatExpr))
	case *ExtractExpr:
		return compareExtractExpr(a, b.(*ExtractExpr))
	case *NotExpr:
		return CompareExpr(a.Expr, b.(*NotExpr).Expr)
	case *CastExpr:
		return compareCastExpr(a, b.(*CastExpr))
	case *BinaryExpr:
		return compareBinaryExpr(a, b.(*BinaryExpr))
	default:
		panic("unreachable")
	}
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareConstantExpr(a, b *ConstantExpr) int {
	if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
		return cmp
	}
	return compareUint(a.Value, b.Value)
}

func compareSymbolExpr(a, b *SymbolExpr) int {
	if cmp := compareUint(a.ID, b.ID); cmp != 0 {
		return cmp
	}
	return compareUint(uint64(a.Width), uint64(b.Width))
}

func compareConcatExpr(a, b *ConcatExpr) int {
	if cmp := CompareExpr(a.MSB, b.MSB); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.LSB, b.LSB)
}

func compareExtractExpr(a, b *ExtractExpr) int {
	if cmp := compareUint(uint64(a.Offset), uint64(b.Offset)); cmp != 0 {
		return cmp
	} else if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.Expr, b.Expr)
}

func compareCastExpr(a, b *CastExpr) int {
	if a.Signed && !b.Signed {
		return -1
	} else if !a.Signed && b.Signed {
		return 1
	}
	if cmp := compareUint(uint64(a.Width), uint64(b.Width)); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.Src, b.Src)
}

func compareBinaryExpr(a, b *BinaryExpr) int {
	if a.Op < b.Op {
		return -1
	} else if a.Op > b.Op {
		return 1
	}
	if cmp := CompareExpr(a.LHS, b.LHS); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.RHS, b.RHS)
}

// exprKind returns a numeric value for the type of expression.
// Only used internally for equality checks and sorting.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *SymbolExpr:
		return 2
	case *ConcatExpr:
		return 3
	case *ExtractExpr:
		return 4
	case *NotExpr:
		return 5
	case *CastExpr:
		return 6
	case *BinaryExpr:
		return 7
	default:
		panic("unreachable")
	}
}

// ExprVisitor represents a visitor that can be passed to WalkExpr().
type ExprVisitor interface {
	// Executed for every visited node. Return a nil visitor to skip children.
	Visit(expr Expr) ExprVisitor
}

// WalkExpr traverses expr depth-first, calling v for every node.
func WalkExpr(v ExprVisitor, expr Expr) {
	if v = v.Visit(expr); v == nil {
		return
	}

	switch expr := expr.(type) {
	case *BinaryExpr:
		WalkExpr(v, expr.LHS)
		WalkExpr(v, expr.RHS)
	case *CastExpr:
		WalkExpr(v, expr.Src)
	case *ConcatExpr:
		WalkExpr(v, expr.MSB)
		WalkExpr(v, expr.LSB)
	case *ExtractExpr:
		WalkExpr(v, expr.Expr)
	case *NotExpr:
		WalkExpr(v, expr.Expr)
	case *ConstantExpr, *SymbolExpr:
		// nop
	default:
		panic("unreachable")
	}
}

// FindSymbols returns all symbols in the expression trees, ordered by ID.
func FindSymbols(exprs ...Expr) []*SymbolExpr {
	v := &symbolExprVisitor{m: make(map[uint64]*SymbolExpr)}
	for _, expr := range exprs {
		WalkExpr(v, expr)
	}

	a := make([]*SymbolExpr, 0, len(v.m))
	for _, sym := range v.m {
		a = append(a, sym)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	return a
}

type symbolExprVisitor struct {
	m map[uint64]*SymbolExpr
}

func (v *symbolExprVisitor) Visit(expr Expr) ExprVisitor {
	if sym, ok := expr.(*SymbolExpr); ok {
		if _, ok := v.m[sym.ID]; !ok {
			v.m[sym.ID] = sym
		}
	}
	return v
}

// ExprEvaluator evaluates expressions using known symbol values.
type ExprEvaluator struct {
	m map[uint64]uint64 // symbol id to value
}

// NewExprEvaluator returns a new instance of ExprEvaluator with the given symbol/value mapping.
func NewExprEvaluator(symbols []*SymbolExpr, values []uint64) *ExprEvaluator {
	assert(len(symbols) == len(values), "symbol/value count mismatch: %d != %d", len(symbols), len(values))

	m := make(map[uint64]uint64)
	for i, sym := range symbols {
		_, ok := m[sym.ID]
		assert(!ok, "duplicate symbol: id=%d", sym.ID)
		m[sym.ID] = values[i] & bitmask(sym.Width)
	}
	return &ExprEvaluator{m: m}
}

// Evaluate evaluates expr to a constant expression. Returns an error if an
// unbound symbol or a node wider than 64 bits is encountered.
func (ee *ExprEvaluator) Evaluate(expr Expr) (*ConstantExpr, error) {
	if w := ExprWidth(expr); w > Width64 {
		return nil, errors.Errorf("cannot evaluate %d-bit expression", w)
	}

	switch expr := expr.(type) {
	case *BinaryExpr:
		lhs, err := ee.Evaluate(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ee.Evaluate(expr.RHS)
		if err != nil {
			return nil, err
		}
		return lhs.apply(expr.Op, rhs), nil
	case *CastExpr:
		src, err := ee.Evaluate(expr.Src)
		if err != nil {
			return nil, err
		}
		return NewCastExpr(src, expr.Width, expr.Signed).(*ConstantExpr), nil
	case *ConcatExpr:
		msb, err := ee.Evaluate(expr.MSB)
		if err != nil {
			return nil, err
		}
		lsb, err := ee.Evaluate(expr.LSB)
		if err != nil {
			return nil, err
		}
		return msb.Concat(lsb), nil
	case *ConstantExpr:
		return expr, nil
	case *ExtractExpr:
		if ExprWidth(expr.Expr) > Width64 {
			return ee.evaluateWideExtract(expr)
		}
		exp, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return exp.Extract(expr.Offset, expr.Width), nil
	case *NotExpr:
		exp, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return exp.Not(), nil
	case *SymbolExpr:
		v, ok := ee.m[expr.ID]
		if !ok {
			return nil, errors.Errorf("symbol not bound: id=%d", expr.ID)
		}
		return NewConstantExpr(v, expr.Width), nil
	default:
		return nil, errors.Errorf("invalid expression type: %T", expr)
	}
}

// evaluateWideExtract handles an extract that reaches directly into one
// half of a wide concatenation.
func (ee *ExprEvaluator) evaluateWideExtract(expr *ExtractExpr) (*ConstantExpr, error) {
	concat, ok := expr.Expr.(*ConcatExpr)
	if !ok {
		return nil, errors.Errorf("cannot evaluate %d-bit expression", ExprWidth(expr.Expr))
	}
	if lw := ExprWidth(concat.LSB); expr.Offset >= lw {
		return ee.Evaluate(NewExtractExpr(concat.MSB, expr.Offset-lw, expr.Width))
	} else if expr.Offset+expr.Width <= lw {
		return ee.Evaluate(NewExtractExpr(concat.LSB, expr.Offset, expr.Width))
	}
	return nil, errors.Errorf("cannot evaluate %d-bit expression", ExprWidth(expr.Expr))
}
