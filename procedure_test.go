package lilt_test

import (
	"testing"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLookupProcedure(t *testing.T) {
	for _, tt := range []struct {
		name string
		want lilt.Procedure
	}{
		{"puts", lilt.ProcPuts},
		{"_IO_puts", lilt.ProcPuts},
		{"printf", lilt.ProcPrintf},
		{"__printf_chk", lilt.ProcPrintf},
		{"fgets", lilt.ProcFgets},
		{"strlen@plt", lilt.ProcStrlen},
		{"_atoi", lilt.ProcAtoi},
		{"exit", lilt.ProcUnknown},
		{"", lilt.ProcUnknown},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if p := lilt.LookupProcedure(tt.name); p != tt.want {
				t.Fatalf("unexpected procedure: %s", p)
			}
		})
	}
}

func TestProcedure_String(t *testing.T) {
	if s := lilt.ProcFgets.String(); s != "fgets" {
		t.Fatalf("unexpected string: %s", s)
	} else if s := lilt.ProcUnknown.String(); s != "unknown" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestProcedure_Call(t *testing.T) {
	config := lilt.DefaultConfig()

	for _, tt := range []struct {
		proc  lilt.Procedure
		rax   uint64
		stdin string
	}{
		{lilt.ProcPuts, 0, ""},
		{lilt.ProcPrintf, 0, ""},
		{lilt.ProcFgets, 0, "1234"},
		{lilt.ProcStrlen, 4, ""},
		{lilt.ProcAtoi, 6, ""},
	} {
		t.Run(tt.proc.String(), func(t *testing.T) {
			s := lilt.NewState(0x1000)
			tt.proc.Call(s, tt.proc.String(), &config, nil)
			if v := s.Register("rax"); v != tt.rax {
				t.Fatalf("unexpected rax: %#x", v)
			} else if s.Stdin != tt.stdin {
				t.Fatalf("unexpected stdin: %q", s.Stdin)
			} else if v := s.Register("rdi"); v != 6 {
				t.Fatalf("unexpected rdi: %#x", v)
			}
		})
	}

	t.Run("FgetsInput", func(t *testing.T) {
		config := lilt.DefaultConfig()
		config.FgetsInput = "9999"
		s := lilt.NewState(0x1000)
		lilt.ProcFgets.Call(s, "fgets", &config, nil)
		if s.Stdin != "9999" {
			t.Fatalf("unexpected stdin: %q", s.Stdin)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		logger := &log.Logger{Logger: zap.New(core)}

		s := lilt.NewState(0x1000)
		s.Addr = 0x400700
		before := s.Dump()
		lilt.ProcUnknown.Call(s, "exit", &config, logger)
		if after := s.Dump(); after != before {
			t.Fatalf("state mutated:\n%s", after)
		}

		entries := logs.FilterMessage("unmodeled procedure").All()
		if len(entries) != 1 {
			t.Fatalf("unexpected log entries: %d", logs.Len())
		} else if name := entries[0].ContextMap()["fn"]; name != "exit" {
			t.Fatalf("unexpected name: %v", name)
		}
	})

	t.Run("Trace", func(t *testing.T) {
		var traces []string
		logger := log.NewNop()
		logger.SetOnTrace(func(addr uint64, category, name, detail string) {
			traces = append(traces, log.Hex(addr)+" "+category+" "+name+" "+detail)
		})

		s := lilt.NewState(0x1000)
		s.Addr = 0x400814
		lilt.ProcAtoi.Call(s, "atoi", &config, logger)
		if diff := cmp.Diff([]string{"0x400814 libc atoi rax=6"}, traces); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		s := lilt.NewSymbolicState(0x1000)
		lilt.ProcStrlen.Call(s, "strlen", &config, nil)
		if diff := cmp.Diff(lilt.Expr(lilt.NewConstantExpr64(4)), s.Register("rax")); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestExecutor_Step_StubOverBody(t *testing.T) {
	prog := MustNewListing(t,
		&ir.Function{Name: "main", Start: 0x1000, Insts: []ir.Inst{
			&ir.Call{Pos: ir.Pos{Addr: 0x1000, Index: 0}, Target: ir.Const(0x2000)},
			&ir.Call{Pos: ir.Pos{Addr: 0x1005, Index: 1}, Target: ir.Const(0x3000)},
			&ir.Return{Pos: ir.Pos{Addr: 0x100a, Index: 2}},
		}},
		&ir.Function{Name: "atoi", Start: 0x2000, Insts: []ir.Inst{
			&ir.Nop{Pos: ir.Pos{Addr: 0x2000, Index: 0}},
			&ir.SetRegister{Pos: ir.Pos{Addr: 0x2004, Index: 1}, Reg: "rax", Expr: ir.Const(99)},
		}},
		&ir.Function{Name: "exit", Start: 0x3000, External: true},
	)
	e := lilt.NewExecutor(prog, lilt.DefaultConfig(), nil)
	s := MustEntryState(t, e, "main")

	MustStep(t, e, s)
	if v := s.Register("rax"); v != 6 {
		t.Fatalf("unexpected rax: %#x", v)
	} else if diff := cmp.Diff(ir.Pos{Addr: 0x1005, Index: 1}, s.Pos()); diff != "" {
		t.Fatal(diff)
	}

	// Unknown external functions are skipped without side effects.
	MustStep(t, e, s)
	if v := s.Register("rax"); v != 6 {
		t.Fatalf("unexpected rax: %#x", v)
	} else if diff := cmp.Diff(ir.Pos{Addr: 0x100a, Index: 2}, s.Pos()); diff != "" {
		t.Fatal(diff)
	}
}
