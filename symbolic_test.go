package lilt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/ir"
	"github.com/google/go-cmp/cmp"
)

func TestSymbolicExecutor_Run(t *testing.T) {
	t.Run("Fork", func(t *testing.T) {
		x := NewCheckExecutor(t, lilt.DefaultConfig(), "rdi")
		n, err := x.Run(context.Background(), 100)
		if err != nil {
			t.Fatal(err)
		} else if n != 8 {
			t.Fatalf("unexpected step count: %d", n)
		}

		states := x.States()
		if len(states) != 2 {
			t.Fatalf("unexpected state count: %d", len(states))
		}
		taken, other := states[0], states[1]
		if taken != x.RootState() || taken.ID != 1 || other.ID != 2 {
			t.Fatalf("unexpected state ids: %d %d", taken.ID, other.ID)
		}

		for _, tt := range []struct {
			state *lilt.SymbolicState
			rax   uint64
		}{{taken, 1}, {other, 0}} {
			if tt.state.Status != lilt.StatusBlocked || tt.state.Err != nil {
				t.Fatalf("state %d: unexpected end: %s %v", tt.state.ID, tt.state.Status, tt.state.Err)
			} else if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(tt.rax)), tt.state.Register("rax")); diff != "" {
				t.Fatalf("state %d: %s", tt.state.ID, diff)
			} else if len(tt.state.Constraints) != 1 {
				t.Fatalf("state %d: unexpected constraints: %v", tt.state.ID, tt.state.Constraints)
			}
		}

		rdi := taken.Register("rdi")
		cond := lilt.NewCastExpr(lilt.NewBinaryExpr(lilt.EQ,
			lilt.NewBinaryExpr(lilt.ADD, lilt.NewBinaryExpr(lilt.MUL, rdi, lilt.NewConstantExpr64(3)), lilt.NewConstantExpr64(1)),
			lilt.NewConstantExpr64(0x40)), lilt.Width64, false)
		if diff := cmp.Diff([]lilt.Expr{lilt.NewIsNonZeroExpr(cond)}, taken.Constraints); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]lilt.Expr{lilt.NewIsZeroExpr(cond)}, other.Constraints); diff != "" {
			t.Fatal(diff)
		} else if _, _, err := x.ExecuteNextState(0); err != lilt.ErrNoStateAvailable {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Concrete", func(t *testing.T) {
		x := NewCheckExecutor(t, lilt.DefaultConfig())
		if _, err := x.Run(context.Background(), 100); err != nil {
			t.Fatal(err)
		} else if n := len(x.States()); n != 1 {
			t.Fatalf("unexpected state count: %d", n)
		} else if s := x.RootState(); len(s.Constraints) != 0 {
			t.Fatalf("unexpected constraints: %v", s.Constraints)
		} else if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(0)), s.Register("rax")); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("MaxPaths", func(t *testing.T) {
		config := lilt.DefaultConfig()
		config.MaxPaths = 1
		x := NewCheckExecutor(t, config, "rdi")
		if _, err := x.Run(context.Background(), 100); err != nil {
			t.Fatal(err)
		} else if n := len(x.States()); n != 1 {
			t.Fatalf("unexpected state count: %d", n)
		} else if n := len(x.RootState().Constraints); n != 1 {
			t.Fatalf("unexpected constraint count: %d", n)
		}
	})

	t.Run("Lockpick", func(t *testing.T) {
		e := lilt.NewExecutor(MustReadListing(t, "testdata/lockpick.yaml"), lilt.DefaultConfig(), nil)
		x, err := lilt.NewSymbolicExecutor(e, "main")
		if err != nil {
			t.Fatal(err)
		} else if _, err := x.Run(context.Background(), 0); err != nil {
			t.Fatal(err)
		}

		s := x.RootState()
		if n := len(x.States()); n != 1 {
			t.Fatalf("unexpected state count: %d", n)
		} else if s.Stdin != "1234" {
			t.Fatalf("unexpected stdin: %q", s.Stdin)
		} else if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(6)), s.Register("rbx")); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		x := NewCheckExecutor(t, lilt.DefaultConfig(), "rdi")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := x.Run(ctx, 10); err != context.Canceled {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSymbolicExecutor_Step(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "memory")
		s := x.RootState()
		rdi := x.MakeSymbolic(s, "rdi")

		for i := 0; i < 5; i++ {
			MustSymbolicStep(t, x, s)
		}

		if n := len(s.Accesses); n != 2 {
			t.Fatalf("unexpected access count: %d", n)
		} else if s.Accesses[0].Kind != lilt.AccessStore || s.Accesses[1].Kind != lilt.AccessLoad {
			t.Fatalf("unexpected accesses: %v", s.Accesses)
		} else if diff := cmp.Diff(lilt.Expr(rdi), s.Accesses[0].Addr); diff != "" {
			t.Fatal(diff)
		}

		// The loaded word is a fresh symbol carried through concrete memory.
		rax := s.Register("rax")
		if lilt.KindOf(rax) != lilt.Symbolic {
			t.Fatalf("unexpected rax: %s", rax)
		} else if diff := cmp.Diff(rax, s.Register("rbx")); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(rax, s.Load(lilt.DefaultStackPointer)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(lilt.DefaultStackPointer-8)), s.Register("rsp")); diff != "" {
			t.Fatal(diff)
		}

		// Jumping through a symbolic address cannot be resolved.
		if _, err := x.Step(s); err == nil {
			t.Fatal("expected error")
		} else if kind, ok := lilt.StepErrorKind(err); !ok || kind != lilt.LookupFailure {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("LoadModeAddress", func(t *testing.T) {
		config := lilt.DefaultConfig()
		config.LoadMode = lilt.LoadModeAddress
		x := NewSymbolicTestExecutor(t, config, "memory")
		s := x.RootState()
		rdi := x.MakeSymbolic(s, "rdi")
		MustSymbolicStep(t, x, s)
		MustSymbolicStep(t, x, s)
		if diff := cmp.Diff(lilt.Expr(rdi), s.Register("rax")); diff != "" {
			t.Fatal(diff)
		} else if n := len(s.Accesses); n != 1 {
			t.Fatalf("unexpected access count: %d", n)
		}
	})

	t.Run("ErrCallTargetUnresolved", func(t *testing.T) {
		x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "indirect")
		s := x.RootState()
		x.MakeSymbolic(s, "rsi")
		if _, err := x.Step(s); err == nil {
			t.Fatal("expected error")
		} else if kind, ok := lilt.StepErrorKind(err); !ok || kind != lilt.CallTargetUnresolved {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("HaltedState", func(t *testing.T) {
		x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "indirect")
		x.MakeSymbolic(x.RootState(), "rsi")
		s, n, err := x.ExecuteNextState(10)
		if err != nil {
			t.Fatal(err)
		} else if n != 1 || s.Status != lilt.StatusBlocked || s.Err == nil {
			t.Fatalf("unexpected state: n=%d %s %v", n, s.Status, s.Err)
		} else if _, err := x.Step(s); err != lilt.ErrStateBlocked {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("UnmappedTrueBranch", func(t *testing.T) {
		x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "unmapped")
		x.MakeSymbolic(x.RootState(), "rdi")
		n, err := x.Run(context.Background(), 100)
		if err != nil {
			t.Fatal(err)
		} else if n != 3 {
			t.Fatalf("unexpected step count: %d", n)
		} else if len(x.States()) != 2 {
			t.Fatalf("unexpected state count: %d", len(x.States()))
		}

		taken, other := x.States()[0], x.States()[1]
		if kind, ok := lilt.StepErrorKind(taken.Err); !ok || kind != lilt.LookupFailure {
			t.Fatalf("unexpected error: %v", taken.Err)
		}

		// The false side still runs to completion.
		if other.Status != lilt.StatusBlocked || other.Err != nil {
			t.Fatalf("unexpected end: %s %v", other.Status, other.Err)
		} else if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(7)), other.Register("rax")); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Undefined", func(t *testing.T) {
		x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "undefined")
		s := x.RootState()
		MustSymbolicStep(t, x, s)
		MustSymbolicStep(t, x, s)
		a, b := s.Register("rax"), s.Register("rbx")
		if lilt.KindOf(a) != lilt.Symbolic || lilt.KindOf(b) != lilt.Symbolic {
			t.Fatalf("unexpected values: %s %s", a, b)
		} else if a.(*lilt.SymbolExpr).ID == b.(*lilt.SymbolExpr).ID {
			t.Fatal("expected fresh symbols")
		}
	})
}

func TestSymbolicExecutor_Eval(t *testing.T) {
	x := NewSymbolicTestExecutor(t, lilt.DefaultConfig(), "memory")
	s := x.RootState()
	rdi := x.MakeSymbolic(s, "rdi")
	ones := ^uint64(0)

	t.Run("Constant", func(t *testing.T) {
		for _, tt := range []struct {
			name string
			expr ir.Expr
		}{
			{"Divu/Zero", ir.Bin(ir.Divu, ir.Const(7), ir.Const(0))},
			{"Asr", ir.Bin(ir.Asr, ir.Const(1<<63), ir.Const(63))},
			{"MulHiU", ir.Bin(ir.MulHiU, ir.Const(ones), ir.Const(ones))},
			{"CmpSlt", ir.Bin(ir.CmpSlt, ir.Reg("rax"), ir.Const(ones))},
			{"DivHi", &ir.DivHi{Op: ir.DivsDp, High: ir.Const(ones), Low: ir.Const(ones - 6), Divisor: ir.Const(2)}},
		} {
			t.Run(tt.name, func(t *testing.T) {
				want := lilt.NewConstantExpr64(lilt.Evaluate(tt.expr, lilt.NewState(lilt.DefaultStackPointer)))
				if diff := cmp.Diff(lilt.Expr(want), x.Eval(tt.expr, s)); diff != "" {
					t.Fatal(diff)
				}
			})
		}
	})

	t.Run("NeverConstant", func(t *testing.T) {
		for _, expr := range []ir.Expr{
			ir.Bin(ir.Mul, ir.Reg("rdi"), ir.Const(0)),
			ir.Bin(ir.And, ir.Const(0), ir.Reg("rdi")),
			ir.Bin(ir.Xor, ir.Reg("rdi"), ir.Reg("rdi")),
			ir.Bin(ir.CmpE, ir.Reg("rdi"), ir.Reg("rdi")),
			ir.Bin(ir.MulHiS, ir.Reg("rdi"), ir.Const(0)),
			&ir.DivHi{Op: ir.ModuDp, High: ir.Const(0), Low: ir.Reg("rdi"), Divisor: ir.Const(1)},
		} {
			if v := x.Eval(expr, s); lilt.KindOf(v) != lilt.Expression {
				t.Fatalf("%s: unexpected result: %s", expr, v)
			} else if w := lilt.ExprWidth(v); w != lilt.Width64 {
				t.Fatalf("%s: unexpected width: %d", expr, w)
			}
		}
	})

	t.Run("Compare", func(t *testing.T) {
		got := x.Eval(ir.Bin(ir.CmpUgt, ir.Reg("rdi"), ir.Const(3)), s)
		exp := &lilt.CastExpr{
			Src:   &lilt.BinaryExpr{Op: lilt.ULT, LHS: lilt.NewConstantExpr64(3), RHS: rdi},
			Width: lilt.Width64,
		}
		if diff := cmp.Diff(lilt.Expr(exp), got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestSymbolicState_AddConstraint(t *testing.T) {
	s := lilt.NewSymbolicState(0x1000)
	x := lilt.NewSymbolExpr(1, "x", 64)
	lt := lilt.NewBinaryExpr(lilt.ULT, x, lilt.NewConstantExpr64(10))
	gt := lilt.NewBinaryExpr(lilt.UGT, x, lilt.NewConstantExpr64(2))

	if !s.AddConstraint(lt) {
		t.Fatal("expected constraint to be added")
	} else if s.AddConstraint(lilt.NewBinaryExpr(lilt.ULT, x, lilt.NewConstantExpr64(10))) {
		t.Fatal("expected duplicate to be ignored")
	} else if s.AddConstraint(lilt.NewBoolConstantExpr(true)) {
		t.Fatal("expected true constant to be ignored")
	} else if !s.AddConstraint(lilt.NewBinaryExpr(lilt.AND, gt, lt)) {
		t.Fatal("expected conjunction to add its new half")
	}

	if diff := cmp.Diff([]lilt.Expr{lt, gt}, s.Constraints); diff != "" {
		t.Fatal(diff)
	}

	other := s.Clone()
	other.AddConstraint(lilt.NewIsZeroExpr(x))
	if n := len(s.Constraints); n != 2 {
		t.Fatalf("clone shares constraints: %d", n)
	} else if !other.AddConstraint(lilt.NewIsNonZeroExpr(x)) {
		t.Fatal("expected clone to accept new constraint")
	} else if !s.AddConstraint(lilt.NewIsZeroExpr(x)) {
		t.Fatal("expected original to accept constraint added to clone")
	}
}

func TestSymbolicState_AddConstraint_Commutative(t *testing.T) {
	s := lilt.NewSymbolicState(0x1000)
	x, y := lilt.NewSymbolExpr(1, "x", 64), lilt.NewSymbolExpr(2, "y", 64)

	if !s.AddConstraint(lilt.NewIsZeroExpr(lilt.NewBinaryExpr(lilt.ADD, x, y))) {
		t.Fatal("expected constraint to be added")
	} else if s.AddConstraint(lilt.NewIsZeroExpr(lilt.NewBinaryExpr(lilt.ADD, y, x))) {
		t.Fatal("expected reordered sum to be a duplicate")
	} else if !s.AddConstraint(lilt.NewIsZeroExpr(lilt.NewBinaryExpr(lilt.SUB, y, x))) {
		t.Fatal("expected difference to be added")
	} else if n := len(s.Constraints); n != 2 {
		t.Fatalf("unexpected constraint count: %d", n)
	}
}

func TestSymbolicState_Check(t *testing.T) {
	x := NewCheckExecutor(t, lilt.DefaultConfig(), "rdi")
	if _, err := x.Run(context.Background(), 100); err != nil {
		t.Fatal(err)
	}
	taken, other := x.States()[0], x.States()[1]

	t.Run("Satisfiable", func(t *testing.T) {
		satisfiable, model, err := taken.Check(EvalSolver{"rdi": 21})
		if err != nil {
			t.Fatal(err)
		} else if !satisfiable {
			t.Fatal("expected satisfiable")
		} else if diff := cmp.Diff(lilt.Model{"rdi": 21}, model); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]string{"rdi"}, model.Names()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Unsatisfiable", func(t *testing.T) {
		if satisfiable, _, err := other.Check(EvalSolver{"rdi": 21}); err != nil {
			t.Fatal(err)
		} else if satisfiable {
			t.Fatal("expected unsatisfiable")
		} else if _, err := other.Values(EvalSolver{"rdi": 21}); err != lilt.ErrUnsatisfiable {
			t.Fatalf("unexpected error: %v", err)
		} else if m, err := other.Values(EvalSolver{"rdi": 0}); err != nil {
			t.Fatal(err)
		} else if m["rdi"] != 0 {
			t.Fatalf("unexpected model: %v", m)
		}
	})

	t.Run("SharedName", func(t *testing.T) {
		s := lilt.NewSymbolicState(0x1000)
		a, b := lilt.NewSymbolExpr(1, "rax", 64), lilt.NewSymbolExpr(2, "rax", 64)
		c := lilt.NewSymbolExpr(3, "rdi", 64)
		s.AddConstraint(lilt.NewIsZeroExpr(lilt.NewBinaryExpr(lilt.SUB, a, b)))
		s.AddConstraint(lilt.NewIsNonZeroExpr(c))

		model, err := s.Values(EvalSolver{"rax": 5, "rdi": 1})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(lilt.Model{"rax!1": 5, "rax!2": 5, "rdi": 1}, model); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrSolver", func(t *testing.T) {
		solver := SolverFunc(func([]lilt.Expr, []*lilt.SymbolExpr) (bool, []uint64, error) {
			return false, nil, lilt.ErrSolverTimeout
		})
		if _, _, err := taken.Check(solver); !errors.Is(err, lilt.ErrSolverTimeout) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrValueCount", func(t *testing.T) {
		solver := SolverFunc(func([]lilt.Expr, []*lilt.SymbolExpr) (bool, []uint64, error) {
			return true, nil, nil
		})
		if _, _, err := taken.Check(solver); err == nil {
			t.Fatal("expected error")
		}
	})
}

// EvalSolver is a Solver that checks fixed symbol values, keyed by name,
// against the constraints.
type EvalSolver map[string]uint64

func (m EvalSolver) Solve(constraints []lilt.Expr, symbols []*lilt.SymbolExpr) (bool, []uint64, error) {
	values := make([]uint64, len(symbols))
	for i, sym := range symbols {
		values[i] = m[sym.Name]
	}

	ee := lilt.NewExprEvaluator(symbols, values)
	for _, c := range constraints {
		v, err := ee.Evaluate(c)
		if err != nil {
			return false, nil, err
		} else if !v.IsTrue() {
			return false, nil, nil
		}
	}
	return true, values, nil
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func([]lilt.Expr, []*lilt.SymbolExpr) (bool, []uint64, error)

func (fn SolverFunc) Solve(constraints []lilt.Expr, symbols []*lilt.SymbolExpr) (bool, []uint64, error) {
	return fn(constraints, symbols)
}

// NewCheckExecutor returns a symbolic executor over testdata/check.yaml
// with the named registers made symbolic.
func NewCheckExecutor(tb testing.TB, config lilt.Config, symbolic ...string) *lilt.SymbolicExecutor {
	tb.Helper()
	config.Entry = "check"
	config.SymbolicRegisters = symbolic

	e := lilt.NewExecutor(MustReadListing(tb, "testdata/check.yaml"), config, nil)
	x, err := lilt.NewSymbolicExecutor(e, "")
	if err != nil {
		tb.Fatal(err)
	}
	return x
}

// NewSymbolicTestExecutor returns a symbolic executor at entry over small
// functions exercising memory and control flow.
func NewSymbolicTestExecutor(tb testing.TB, config lilt.Config, entry string) *lilt.SymbolicExecutor {
	tb.Helper()
	prog := MustNewListing(tb,
		&ir.Function{Name: "memory", Start: 0x1000, Insts: []ir.Inst{
			&ir.Store{Pos: ir.Pos{Addr: 0x1000, Index: 0}, Dest: ir.Reg("rdi"), Value: ir.Const(1)},
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x1004, Index: 1}, Reg: "rax", Expr: &ir.Load{Addr: ir.Reg("rdi")}},
			&ir.Push{Pos: ir.Pos{Addr: 0x1008, Index: 2}, Expr: ir.Reg("rax")},
			&ir.Store{Pos: ir.Pos{Addr: 0x100c, Index: 3}, Dest: ir.Const(0x8000), Value: ir.Reg("rax")},
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x1010, Index: 4}, Reg: "rbx", Expr: &ir.Load{Addr: ir.Const(0x8000)}},
			&ir.IndirectJump{Pos: ir.Pos{Addr: 0x1014, Index: 5}, Target: ir.Reg("rdi")},
		}},
		&ir.Function{Name: "indirect", Start: 0x2000, Insts: []ir.Inst{
			&ir.Call{Pos: ir.Pos{Addr: 0x2000, Index: 0}, Target: ir.Reg("rsi")},
			&ir.Return{Pos: ir.Pos{Addr: 0x2004, Index: 1}},
		}},
		&ir.Function{Name: "undefined", Start: 0x3000, Insts: []ir.Inst{
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x3000, Index: 0}, Reg: "rax", Expr: &ir.Undefined{Text: "rdrand"}},
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x3004, Index: 1}, Reg: "rbx", Expr: &ir.Undefined{Text: "rdrand"}},
		}},
		&ir.Function{Name: "unmapped", Start: 0x4000, Insts: []ir.Inst{
			&ir.ConditionalBranch{Pos: ir.Pos{Addr: 0x4000, Index: 0}, Cond: ir.Reg("rdi"), True: 0xdead, False: 0x4004},
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x4004, Index: 1}, Reg: "rax", Expr: ir.Const(7)},
			&ir.Return{Pos: ir.Pos{Addr: 0x4008, Index: 2}},
		}},
	)
	x, err := lilt.NewSymbolicExecutor(lilt.NewExecutor(prog, config, nil), entry)
	if err != nil {
		tb.Fatal(err)
	}
	return x
}

// MustSymbolicStep executes one step of s. Fatal on error or fork.
func MustSymbolicStep(tb testing.TB, x *lilt.SymbolicExecutor, s *lilt.SymbolicState) {
	tb.Helper()
	if other, err := x.Step(s); err != nil {
		tb.Fatalf("step at %s: %s", s.Pos(), err)
	} else if other != nil {
		tb.Fatalf("unexpected fork at %s", s.Pos())
	}
}
