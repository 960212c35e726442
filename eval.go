package lilt

import (
	"fmt"
	"math/bits"

	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Evaluator computes IR expressions over a concrete State.
type Evaluator struct {
	LoadMode LoadMode
	Logger   *log.Logger
}

// Evaluate computes expr against s with the default evaluator.
func Evaluate(expr ir.Expr, s *State) uint64 {
	return (&Evaluator{}).Eval(expr, s)
}

// Eval computes expr against s. Evaluation never mutates the state and
// never fails: unmodeled expressions evaluate to zero.
func (ev *Evaluator) Eval(expr ir.Expr, s *State) uint64 {
	switch expr := expr.(type) {
	case *ir.Register:
		return s.Register(expr.Name)
	case *ir.Constant:
		return expr.Value
	case *ir.Flag:
		return s.Flag(expr.Name)
	case *ir.Load:
		addr := ev.Eval(expr.Addr, s)
		if ev.LoadMode == LoadModeAddress {
			return addr
		}
		return s.Load(addr)
	case *ir.Binary:
		return EvalBinary(expr.Op, ev.Eval(expr.LHS, s), ev.Eval(expr.RHS, s))
	case *ir.DivHi:
		return EvalDivHi(expr.Op, ev.Eval(expr.High, s), ev.Eval(expr.Low, s), ev.Eval(expr.Divisor, s))
	case *ir.Undefined:
		if ev.Logger != nil {
			ev.Logger.Warn("unmodeled expression", log.Pos(s.Addr, s.Index), zap.String("text", expr.Text))
		}
		return 0
	default:
		panic(fmt.Sprintf("lilt: unexpected expression type: %T", expr))
	}
}

// EvalBinary applies op to two 64-bit operands. Arithmetic wraps modulo
// 2^64 and division or modulo by zero yields zero. Comparisons yield 1 or 0.
func EvalBinary(op ir.Op, x, y uint64) uint64 {
	switch op {
	case ir.Add:
		return x + y
	case ir.Sub:
		return x - y
	case ir.And:
		return x & y
	case ir.Or:
		return x | y
	case ir.Xor:
		return x ^ y
	case ir.Mul:
		return x * y
	case ir.Divu:
		if y == 0 {
			return 0
		}
		return x / y
	case ir.Divs:
		if y == 0 {
			return 0
		}
		return uint64(int64(x) / int64(y))
	case ir.Modu:
		if y == 0 {
			return 0
		}
		return x % y
	case ir.Mods:
		if y == 0 {
			return 0
		}
		return uint64(int64(x) % int64(y))
	case ir.Lsl:
		return x << y
	case ir.Lsr:
		return x >> y
	case ir.Asr:
		return uint64(int64(x) >> y)
	case ir.Rol:
		return bits.RotateLeft64(x, int(y%64))
	case ir.Ror:
		return bits.RotateLeft64(x, -int(y%64))
	case ir.MulHiU:
		hi, _ := bits.Mul64(x, y)
		return hi
	case ir.MulHiS:
		return mulHiSigned(x, y)

	case ir.CmpE:
		return boolValue(x == y)
	case ir.CmpNe:
		return boolValue(x != y)
	case ir.CmpSlt:
		return boolValue(int64(x) < int64(y))
	case ir.CmpSle:
		return boolValue(int64(x) <= int64(y))
	case ir.CmpSge:
		return boolValue(int64(x) >= int64(y))
	case ir.CmpSgt:
		return boolValue(int64(x) > int64(y))
	case ir.CmpUlt:
		return boolValue(x < y)
	case ir.CmpUle:
		return boolValue(x <= y)
	case ir.CmpUge:
		return boolValue(x >= y)
	case ir.CmpUgt:
		return boolValue(x > y)
	default:
		panic(fmt.Sprintf("lilt: unexpected binary op: %s", op))
	}
}

// mulHiSigned returns the upper 64 bits of the signed 128-bit product.
func mulHiSigned(x, y uint64) uint64 {
	a, b := signExtend64(x), signExtend64(y)
	return new(uint256.Int).Rsh(new(uint256.Int).Mul(a, b), 64).Uint64()
}

// EvalDivHi divides the 128-bit dividend high:low by divisor and returns
// the low 64 bits of the quotient or remainder. A zero divisor yields zero.
func EvalDivHi(op ir.DivHiOp, high, low, divisor uint64) uint64 {
	dividend := new(uint256.Int).Lsh(new(uint256.Int).SetUint64(high), 64)
	dividend.Or(dividend, new(uint256.Int).SetUint64(low))

	var d *uint256.Int
	if op.Signed() {
		dividend.ExtendSign(dividend, uint256.NewInt(15))
		d = signExtend64(divisor)
	} else {
		d = new(uint256.Int).SetUint64(divisor)
	}

	z := new(uint256.Int)
	switch op {
	case ir.DivuDp:
		z.Div(dividend, d)
	case ir.ModuDp:
		z.Mod(dividend, d)
	case ir.DivsDp:
		z.SDiv(dividend, d)
	case ir.ModsDp:
		z.SMod(dividend, d)
	default:
		panic(fmt.Sprintf("lilt: unexpected divhi op: %s", op))
	}
	return z.Uint64()
}

// signExtend64 returns v as a two's complement 256-bit integer.
func signExtend64(v uint64) *uint256.Int {
	z := new(uint256.Int).SetUint64(v)
	return z.ExtendSign(z, uint256.NewInt(7))
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
