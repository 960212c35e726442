package lilt_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benbjohnson/lilt"
	"github.com/google/go-cmp/cmp"
)

func TestReadConfigFile(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lilt.yaml")
		if err := os.WriteFile(path, []byte(`
entry: _start
step-budget: 50
load-mode: address
symbolic-registers: [rdi, rsi]
`), 0666); err != nil {
			t.Fatal(err)
		}

		config, err := lilt.ReadConfigFile(path)
		if err != nil {
			t.Fatal(err)
		}

		want := lilt.DefaultConfig()
		want.Entry = "_start"
		want.StepBudget = 50
		want.LoadMode = lilt.LoadModeAddress
		want.SymbolicRegisters = []string{"rdi", "rsi"}
		if diff := cmp.Diff(want, config); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrInvalidLoadMode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lilt.yaml")
		if err := os.WriteFile(path, []byte("load-mode: bytes\n"), 0666); err != nil {
			t.Fatal(err)
		}
		if _, err := lilt.ReadConfigFile(path); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("ErrDuplicateSymbolicRegister", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lilt.yaml")
		if err := os.WriteFile(path, []byte("symbolic-registers: [rdi, rsi, rdi]\n"), 0666); err != nil {
			t.Fatal(err)
		}
		if _, err := lilt.ReadConfigFile(path); err == nil || !strings.Contains(err.Error(), `duplicate symbolic register: "rdi"`) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrNotExist", func(t *testing.T) {
		if _, err := lilt.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	config := lilt.DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatal(err)
	} else if config.CallContinuationOffset != lilt.DefaultCallContinuationOffset {
		t.Fatalf("unexpected offset: %d", config.CallContinuationOffset)
	} else if config.LoadMode != lilt.LoadModeMemory {
		t.Fatalf("unexpected load mode: %s", config.LoadMode)
	}
}
