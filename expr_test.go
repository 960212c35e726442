package lilt_test

import (
	"testing"

	"github.com/benbjohnson/lilt"
	"github.com/google/go-cmp/cmp"
)

func TestExprWidth(t *testing.T) {
	t.Run("ConstantExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(lilt.NewConstantExpr(0, 8)); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("SymbolExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(lilt.NewSymbolExpr(1, "rax", 64)); w != 64 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("ConcatExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(&lilt.ConcatExpr{
			MSB: lilt.NewConstantExpr(0, 8),
			LSB: lilt.NewConstantExpr(0, 16),
		}); w != 24 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("ExtractExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(&lilt.ExtractExpr{Expr: lilt.NewConstantExpr(0, 32), Offset: 8, Width: 16}); w != 16 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("NotExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(&lilt.NotExpr{Expr: lilt.NewConstantExpr(0, 8)}); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("CastExpr", func(t *testing.T) {
		if w := lilt.ExprWidth(&lilt.CastExpr{Src: lilt.NewConstantExpr(0, 8), Width: 16}); w != 16 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("BinaryExpr", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			if w := lilt.ExprWidth(&lilt.BinaryExpr{
				Op:  lilt.EQ,
				LHS: lilt.NewConstantExpr(0, 8),
				RHS: lilt.NewConstantExpr(0, 8),
			}); w != 1 {
				t.Fatalf("unexpected width: %d", w)
			}
		})
		t.Run("NonBool", func(t *testing.T) {
			if w := lilt.ExprWidth(&lilt.BinaryExpr{
				Op:  lilt.ADD,
				LHS: lilt.NewConstantExpr(0, 8),
				RHS: lilt.NewConstantExpr(0, 8),
			}); w != 8 {
				t.Fatalf("unexpected width: %d", w)
			}
		})
	})
}

func TestKindOf(t *testing.T) {
	x := lilt.NewSymbolExpr(1, "rax", 64)

	for _, tt := range []struct {
		name string
		expr lilt.Expr
		kind lilt.BVKind
	}{
		{"Constant", lilt.NewConstantExpr64(7), lilt.Concrete},
		{"Symbol", x, lilt.Symbolic},
		{"Binary", lilt.NewBinaryExpr(lilt.ADD, x, lilt.NewConstantExpr64(1)), lilt.Expression},
		{"Not", lilt.NewNotExpr(x), lilt.Expression},
		{"Folded", lilt.NewBinaryExpr(lilt.ADD, lilt.NewConstantExpr64(1), lilt.NewConstantExpr64(2)), lilt.Concrete},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if kind := lilt.KindOf(tt.expr); kind != tt.kind {
				t.Fatalf("unexpected kind: %s", kind)
			}
		})
	}

	t.Run("String", func(t *testing.T) {
		if s := lilt.Expression.String(); s != "expression" {
			t.Fatalf("unexpected string: %s", s)
		} else if s := lilt.BVKind(100).String(); s != "BVKind<100>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestBinaryOp_String(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		if s := lilt.ROTL.String(); s != "rotl" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if s := lilt.BinaryOp(1000).String(); s != "BinaryOp<1000>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestBinaryOp_IsCompare(t *testing.T) {
	if !lilt.SGE.IsCompare() || lilt.ROTR.IsCompare() {
		t.Fatal("unexpected compare classification")
	} else if !lilt.ROTR.IsArithmetic() || lilt.EQ.IsArithmetic() {
		t.Fatal("unexpected arithmetic classification")
	}
}

func TestNewBinaryExpr_Constant(t *testing.T) {
	for _, tt := range []struct {
		name     string
		op       lilt.BinaryOp
		lhs, rhs uint64
		want     *lilt.ConstantExpr
	}{
		{"ADD/Wrap", lilt.ADD, 0xF0, 0x20, lilt.NewConstantExpr(0x10, 8)},
		{"SUB/Wrap", lilt.SUB, 1, 2, lilt.NewConstantExpr(0xFF, 8)},
		{"MUL/Wrap", lilt.MUL, 0x10, 0x10, lilt.NewConstantExpr(0, 8)},
		{"UDIV", lilt.UDIV, 0xFE, 2, lilt.NewConstantExpr(0x7F, 8)},
		{"UDIV/Zero", lilt.UDIV, 0xFE, 0, lilt.NewConstantExpr(0, 8)},
		{"SDIV", lilt.SDIV, 0xFE, 2, lilt.NewConstantExpr(0xFF, 8)},
		{"SDIV/Zero", lilt.SDIV, 0xFE, 0, lilt.NewConstantExpr(0, 8)},
		{"UREM", lilt.UREM, 7, 3, lilt.NewConstantExpr(1, 8)},
		{"UREM/Zero", lilt.UREM, 7, 0, lilt.NewConstantExpr(0, 8)},
		{"SREM", lilt.SREM, 0xF9, 2, lilt.NewConstantExpr(0xFF, 8)},
		{"SREM/Zero", lilt.SREM, 0xF9, 0, lilt.NewConstantExpr(0, 8)},
		{"AND", lilt.AND, 0xF0, 0x3C, lilt.NewConstantExpr(0x30, 8)},
		{"OR", lilt.OR, 0xF0, 0x0F, lilt.NewConstantExpr(0xFF, 8)},
		{"XOR", lilt.XOR, 0xFF, 0x0F, lilt.NewConstantExpr(0xF0, 8)},
		{"SHL", lilt.SHL, 1, 7, lilt.NewConstantExpr(0x80, 8)},
		{"SHL/Overflow", lilt.SHL, 1, 8, lilt.NewConstantExpr(0, 8)},
		{"LSHR", lilt.LSHR, 0x80, 7, lilt.NewConstantExpr(1, 8)},
		{"LSHR/Overflow", lilt.LSHR, 0x80, 9, lilt.NewConstantExpr(0, 8)},
		{"ASHR", lilt.ASHR, 0x80, 3, lilt.NewConstantExpr(0xF0, 8)},
		{"ASHR/Overflow", lilt.ASHR, 0x80, 20, lilt.NewConstantExpr(0xFF, 8)},
		{"ROTL", lilt.ROTL, 0x81, 1, lilt.NewConstantExpr(0x03, 8)},
		{"ROTL/Modulo", lilt.ROTL, 0x81, 9, lilt.NewConstantExpr(0x03, 8)},
		{"ROTR", lilt.ROTR, 0x81, 1, lilt.NewConstantExpr(0xC0, 8)},
		{"EQ", lilt.EQ, 3, 3, lilt.NewBoolConstantExpr(true)},
		{"NE", lilt.NE, 3, 4, lilt.NewBoolConstantExpr(true)},
		{"ULT", lilt.ULT, 1, 0xFF, lilt.NewBoolConstantExpr(true)},
		{"SLT", lilt.SLT, 1, 0xFF, lilt.NewBoolConstantExpr(false)},
		{"ULE", lilt.ULE, 5, 5, lilt.NewBoolConstantExpr(true)},
		{"SLE", lilt.SLE, 0xFF, 0, lilt.NewBoolConstantExpr(true)},
		{"UGT", lilt.UGT, 0xFF, 1, lilt.NewBoolConstantExpr(true)},
		{"UGE", lilt.UGE, 1, 1, lilt.NewBoolConstantExpr(true)},
		{"SGT", lilt.SGT, 0xFF, 1, lilt.NewBoolConstantExpr(false)},
		{"SGE", lilt.SGE, 0x80, 0x7F, lilt.NewBoolConstantExpr(false)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := lilt.NewBinaryExpr(tt.op, lilt.NewConstantExpr(tt.lhs, 8), lilt.NewConstantExpr(tt.rhs, 8))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	t.Run("ROTL64", func(t *testing.T) {
		got := lilt.NewBinaryExpr(lilt.ROTL, lilt.NewConstantExpr64(0x8000000000000001), lilt.NewConstantExpr64(65))
		if diff := cmp.Diff(lilt.NewConstantExpr64(3), got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Wide", func(t *testing.T) {
		lhs, rhs := lilt.NewConstantExpr(1, 128), lilt.NewConstantExpr(2, 128)
		got := lilt.NewBinaryExpr(lilt.ADD, lhs, rhs)
		if diff := cmp.Diff(&lilt.BinaryExpr{Op: lilt.ADD, LHS: lhs, RHS: rhs}, got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewBinaryExpr_Symbolic(t *testing.T) {
	x := lilt.NewSymbolExpr(1, "rax", 64)
	zero := lilt.NewConstantExpr64(0)

	// An unknown input is never folded away, even when the result is fixed.
	for _, tt := range []struct {
		op  lilt.BinaryOp
		exp lilt.Expr
	}{
		{lilt.MUL, &lilt.BinaryExpr{Op: lilt.MUL, LHS: zero, RHS: x}},
		{lilt.AND, &lilt.BinaryExpr{Op: lilt.AND, LHS: zero, RHS: x}},
		{lilt.SHL, &lilt.BinaryExpr{Op: lilt.SHL, LHS: x, RHS: zero}},
		{lilt.UDIV, &lilt.BinaryExpr{Op: lilt.UDIV, LHS: x, RHS: zero}},
	} {
		op := tt.op
		t.Run("Keep/"+op.String(), func(t *testing.T) {
			got := lilt.NewBinaryExpr(op, x, zero)
			if diff := cmp.Diff(tt.exp, got); diff != "" {
				t.Fatal(diff)
			} else if lilt.KindOf(got) == lilt.Concrete {
				t.Fatal("expected non-concrete result")
			}
		})
	}

	t.Run("Keep/SUB", func(t *testing.T) {
		if got := lilt.NewBinaryExpr(lilt.SUB, x, x); lilt.KindOf(got) != lilt.Expression {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Commutative", func(t *testing.T) {
		y := lilt.NewSymbolExpr(2, "rbx", 64)
		for _, op := range []lilt.BinaryOp{lilt.ADD, lilt.MUL, lilt.AND, lilt.OR, lilt.XOR, lilt.EQ} {
			a, b := lilt.NewBinaryExpr(op, x, y), lilt.NewBinaryExpr(op, y, x)
			if diff := cmp.Diff(a, b); diff != "" {
				t.Fatalf("%s: %s", op, diff)
			}
		}
		if a, b := lilt.NewBinaryExpr(lilt.SUB, x, y), lilt.NewBinaryExpr(lilt.SUB, y, x); lilt.CompareExpr(a, b) == 0 {
			t.Fatal("expected sub operands to keep their order")
		}
	})

	t.Run("NE", func(t *testing.T) {
		got := lilt.NewBinaryExpr(lilt.NE, x, zero)
		exp := &lilt.BinaryExpr{
			Op:  lilt.EQ,
			LHS: lilt.NewBoolConstantExpr(false),
			RHS: &lilt.BinaryExpr{Op: lilt.EQ, LHS: zero, RHS: x},
		}
		if diff := cmp.Diff(exp, got); diff != "" {
			t.Fatal(diff)
		}
	})

	for _, tt := range []struct {
		op, normalized lilt.BinaryOp
	}{
		{lilt.UGT, lilt.ULT},
		{lilt.UGE, lilt.ULE},
		{lilt.SGT, lilt.SLT},
		{lilt.SGE, lilt.SLE},
	} {
		t.Run(tt.op.String(), func(t *testing.T) {
			one := lilt.NewConstantExpr64(1)
			got := lilt.NewBinaryExpr(tt.op, x, one)
			if diff := cmp.Diff(&lilt.BinaryExpr{Op: tt.normalized, LHS: one, RHS: x}, got); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	t.Run("WidthMismatch", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		lilt.NewBinaryExpr(lilt.ADD, x, lilt.NewConstantExpr(1, 32))
	})
}

func TestBinaryExpr_String(t *testing.T) {
	expr := lilt.NewBinaryExpr(lilt.ADD, lilt.NewSymbolExpr(1, "rax", 64), lilt.NewConstantExpr64(1))
	if s := expr.String(); s != "(add (const 1 64) (sym #1 rax 64))" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestNewConcatExpr(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		got := lilt.NewConcatExpr(lilt.NewConstantExpr(0x80, 8), lilt.NewConstantExpr(0xFF, 8))
		if diff := cmp.Diff(lilt.NewConstantExpr(0x80FF, 16), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Wide", func(t *testing.T) {
		msb, lsb := lilt.NewConstantExpr64(1), lilt.NewConstantExpr64(2)
		got := lilt.NewConcatExpr(msb, lsb)
		if diff := cmp.Diff(&lilt.ConcatExpr{MSB: msb, LSB: lsb}, got); diff != "" {
			t.Fatal(diff)
		} else if w := lilt.ExprWidth(got); w != 128 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Extract", func(t *testing.T) {
		x := lilt.NewSymbolExpr(1, "rax", 64)
		got := lilt.NewConcatExpr(
			&lilt.ExtractExpr{Expr: x, Offset: 32, Width: 32},
			&lilt.ExtractExpr{Expr: x, Offset: 0, Width: 32},
		)
		if diff := cmp.Diff(lilt.Expr(x), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Symbolic", func(t *testing.T) {
		a, b := lilt.NewSymbolExpr(1, "a", 8), lilt.NewSymbolExpr(2, "b", 8)
		got := lilt.NewConcatExpr(a, b)
		if diff := cmp.Diff(&lilt.ConcatExpr{MSB: a, LSB: b}, got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewExtractExpr(t *testing.T) {
	t.Run("SameWidth", func(t *testing.T) {
		got := lilt.NewExtractExpr(lilt.NewConstantExpr(100, 16), 0, 16)
		if diff := cmp.Diff(lilt.NewConstantExpr(100, 16), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Constant", func(t *testing.T) {
		got := lilt.NewExtractExpr(lilt.NewConstantExpr(0xFF80, 16), 8, 8)
		if diff := cmp.Diff(lilt.NewConstantExpr(0xFF, 8), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Concat", func(t *testing.T) {
		concat := &lilt.ConcatExpr{MSB: lilt.NewConstantExpr(0xDDCC, 16), LSB: lilt.NewConstantExpr(0xBBAA, 16)}

		t.Run("LSBOnly", func(t *testing.T) {
			if diff := cmp.Diff(lilt.NewConstantExpr(0xBB, 8), lilt.NewExtractExpr(concat, 8, 8)); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("MSBOnly", func(t *testing.T) {
			if diff := cmp.Diff(lilt.NewConstantExpr(0xDD, 8), lilt.NewExtractExpr(concat, 24, 8)); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("Constant", func(t *testing.T) {
			if diff := cmp.Diff(lilt.NewConstantExpr(0xCCBB, 16), lilt.NewExtractExpr(concat, 8, 16)); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("Symbolic", func(t *testing.T) {
			a, b := lilt.NewSymbolExpr(1, "a", 16), lilt.NewSymbolExpr(2, "b", 16)
			got := lilt.NewExtractExpr(lilt.NewConcatExpr(a, b), 8, 16)
			exp := &lilt.ConcatExpr{
				MSB: &lilt.ExtractExpr{Expr: a, Offset: 0, Width: 8},
				LSB: &lilt.ExtractExpr{Expr: b, Offset: 8, Width: 8},
			}
			if diff := cmp.Diff(exp, got); diff != "" {
				t.Fatal(diff)
			}
		})
	})
	t.Run("Symbolic", func(t *testing.T) {
		x := lilt.NewSymbolExpr(1, "rax", 64)
		got := lilt.NewExtractExpr(x, 8, 16)
		if diff := cmp.Diff(&lilt.ExtractExpr{Expr: x, Offset: 8, Width: 16}, got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("OutOfBounds", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		lilt.NewExtractExpr(lilt.NewConstantExpr(0, 16), 8, 16)
	})
}

func TestNewNotExpr(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		if diff := cmp.Diff(lilt.NewConstantExpr(0xF0, 8), lilt.NewNotExpr(lilt.NewConstantExpr(0x0F, 8))); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Symbolic", func(t *testing.T) {
		x := lilt.NewSymbolExpr(1, "rax", 64)
		if diff := cmp.Diff(&lilt.NotExpr{Expr: x}, lilt.NewNotExpr(x)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewCastExpr(t *testing.T) {
	x := lilt.NewSymbolExpr(1, "rax", 64)

	t.Run("SameWidth", func(t *testing.T) {
		if diff := cmp.Diff(lilt.Expr(x), lilt.NewCastExpr(x, 64, true)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Truncate", func(t *testing.T) {
		if diff := cmp.Diff(lilt.NewConstantExpr(0x34, 8), lilt.NewCastExpr(lilt.NewConstantExpr(0x1234, 16), 8, false)); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff(&lilt.ExtractExpr{Expr: x, Width: 32}, lilt.NewCastExpr(x, 32, false)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ZExt", func(t *testing.T) {
		if diff := cmp.Diff(lilt.NewConstantExpr(0x80, 16), lilt.NewCastExpr(lilt.NewConstantExpr(0x80, 8), 16, false)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("SExt", func(t *testing.T) {
		if diff := cmp.Diff(lilt.NewConstantExpr(0xFF80, 16), lilt.NewCastExpr(lilt.NewConstantExpr(0x80, 8), 16, true)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Symbolic", func(t *testing.T) {
		if diff := cmp.Diff(&lilt.CastExpr{Src: x, Width: 128, Signed: true}, lilt.NewCastExpr(x, 128, true)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Wide", func(t *testing.T) {
		c := lilt.NewConstantExpr64(1)
		if diff := cmp.Diff(&lilt.CastExpr{Src: c, Width: 128}, lilt.NewCastExpr(c, 128, false)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestCastExpr_String(t *testing.T) {
	x := lilt.NewSymbolExpr(2, "rdi", 64)
	if s := (&lilt.CastExpr{Src: x, Width: 128, Signed: true}).String(); s != "(sext (sym #2 rdi 64) 128)" {
		t.Fatalf("unexpected string: %s", s)
	} else if s := (&lilt.CastExpr{Src: x, Width: 128}).String(); s != "(zext (sym #2 rdi 64) 128)" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestConstantExpr_IsTrue(t *testing.T) {
	if !lilt.NewBoolConstantExpr(true).IsTrue() {
		t.Fatal("expected true")
	} else if lilt.NewConstantExpr(1, 8).IsTrue() {
		t.Fatal("expected non-bool constant to not be true")
	} else if lilt.IsConstantTrue(lilt.NewBoolConstantExpr(false)) {
		t.Fatal("expected false to not be true")
	} else if lilt.IsConstantTrue(lilt.NewSymbolExpr(1, "z", 1)) {
		t.Fatal("expected symbol to not be true")
	}
}

func TestNewIsZeroExpr(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		if !lilt.IsConstantTrue(lilt.NewIsZeroExpr(lilt.NewConstantExpr64(0))) {
			t.Fatal("expected true")
		} else if !lilt.IsConstantTrue(lilt.NewIsNonZeroExpr(lilt.NewConstantExpr64(5))) {
			t.Fatal("expected true")
		}
	})
	t.Run("Symbolic", func(t *testing.T) {
		x := lilt.NewSymbolExpr(1, "rax", 64)
		got := lilt.NewIsZeroExpr(x)
		if diff := cmp.Diff(&lilt.BinaryExpr{Op: lilt.EQ, LHS: lilt.NewConstantExpr64(0), RHS: x}, got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestCompareExpr(t *testing.T) {
	a, b := lilt.NewSymbolExpr(1, "a", 64), lilt.NewSymbolExpr(2, "b", 64)

	if v := lilt.CompareExpr(lilt.NewConstantExpr64(9), a); v != -1 {
		t.Fatalf("unexpected result: %d", v)
	} else if v := lilt.CompareExpr(a, b); v != -1 {
		t.Fatalf("unexpected result: %d", v)
	} else if v := lilt.CompareExpr(lilt.NewBinaryExpr(lilt.ADD, a, b), lilt.NewBinaryExpr(lilt.ADD, a, b)); v != 0 {
		t.Fatalf("unexpected result: %d", v)
	} else if v := lilt.CompareExpr(nil, a); v != -1 {
		t.Fatalf("unexpected result: %d", v)
	}
}

func TestFindSymbols(t *testing.T) {
	a, b, c := lilt.NewSymbolExpr(1, "a", 64), lilt.NewSymbolExpr(2, "b", 64), lilt.NewSymbolExpr(3, "c", 64)
	exprs := []lilt.Expr{
		lilt.NewBinaryExpr(lilt.ADD, c, a),
		lilt.NewNotExpr(lilt.NewBinaryExpr(lilt.MUL, b, a)),
		lilt.NewConstantExpr64(4),
	}
	if diff := cmp.Diff([]*lilt.SymbolExpr{a, b, c}, lilt.FindSymbols(exprs...)); diff != "" {
		t.Fatal(diff)
	}
}

func TestExprEvaluator_Evaluate(t *testing.T) {
	x, y := lilt.NewSymbolExpr(1, "x", 64), lilt.NewSymbolExpr(2, "y", 64)
	ee := lilt.NewExprEvaluator([]*lilt.SymbolExpr{x, y}, []uint64{5, 3})

	t.Run("Arithmetic", func(t *testing.T) {
		expr := lilt.NewBinaryExpr(lilt.ADD, lilt.NewBinaryExpr(lilt.MUL, x, y), lilt.NewConstantExpr64(1))
		if v, err := ee.Evaluate(expr); err != nil {
			t.Fatal(err)
		} else if v.Value != 16 {
			t.Fatalf("unexpected value: %d", v.Value)
		}
	})
	t.Run("Compare", func(t *testing.T) {
		expr := lilt.NewCastExpr(lilt.NewBinaryExpr(lilt.UGT, x, y), 64, false)
		if v, err := ee.Evaluate(expr); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(lilt.NewConstantExpr64(1), v); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("WideExtract", func(t *testing.T) {
		expr := &lilt.ExtractExpr{Expr: &lilt.ConcatExpr{MSB: x, LSB: y}, Offset: 64, Width: 64}
		if v, err := ee.Evaluate(expr); err != nil {
			t.Fatal(err)
		} else if v.Value != 5 {
			t.Fatalf("unexpected value: %d", v.Value)
		}
	})
	t.Run("ErrWide", func(t *testing.T) {
		expr := lilt.NewCastExpr(x, 128, false)
		if _, err := ee.Evaluate(expr); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("ErrUnbound", func(t *testing.T) {
		if _, err := ee.Evaluate(lilt.NewSymbolExpr(9, "z", 64)); err == nil {
			t.Fatal("expected error")
		}
	})
}
