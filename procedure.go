package lilt

import (
	"strings"

	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
)

// Machine is the state surface a procedure stub may touch. It is
// implemented by both State and SymbolicState.
type Machine interface {
	Pos() ir.Pos
	SetConcreteRegister(name string, value uint64)
	SetStdin(v string)
	RegisterString(name string) string
}

var (
	_ Machine = (*State)(nil)
	_ Machine = (*SymbolicState)(nil)
)

// Procedure identifies a modelled external function.
type Procedure int

const (
	ProcUnknown = Procedure(iota)
	ProcPuts
	ProcPrintf
	ProcFgets
	ProcStrlen
	ProcAtoi
)

// procedureDef names a stub and the symbol spellings that resolve to it.
type procedureDef struct {
	Name    string
	Aliases []string
}

var procedureDefs = [...]procedureDef{
	ProcPuts:   {Name: "puts", Aliases: []string{"_IO_puts"}},
	ProcPrintf: {Name: "printf", Aliases: []string{"__printf_chk"}},
	ProcFgets:  {Name: "fgets", Aliases: []string{"_IO_fgets", "__fgets_chk"}},
	ProcStrlen: {Name: "strlen"},
	ProcAtoi:   {Name: "atoi"},
}

var procedures = func() map[string]Procedure {
	m := make(map[string]Procedure)
	for i, def := range procedureDefs {
		if def.Name == "" {
			continue
		}
		m[def.Name] = Procedure(i)
		for _, alias := range def.Aliases {
			m[alias] = Procedure(i)
		}
	}
	return m
}()

// LookupProcedure resolves a symbol name to a stub. Leading underscores
// added by some toolchains and PLT suffixes are ignored.
func LookupProcedure(name string) Procedure {
	if p, ok := procedures[name]; ok {
		return p
	}
	name = strings.TrimSuffix(name, "@plt")
	name = strings.TrimPrefix(name, "_")
	if p, ok := procedures[name]; ok {
		return p
	}
	return ProcUnknown
}

func (p Procedure) String() string {
	if p > ProcUnknown && int(p) < len(procedureDefs) {
		return procedureDefs[p].Name
	}
	return "unknown"
}

// Call applies the stub's effect to m. Unknown procedures only report a
// diagnostic and leave the machine untouched.
func (p Procedure) Call(m Machine, name string, config *Config, logger *log.Logger) {
	logger = log.OrNop(logger)
	addr := m.Pos().Addr

	switch p {
	case ProcPuts, ProcPrintf:
		logger.Trace(addr, "libc", p.String(), "rdi="+m.RegisterString("rdi"))
		m.SetConcreteRegister("rax", 0)
	case ProcFgets:
		input := config.FgetsInput
		if input == "" {
			input = DefaultConfig().FgetsInput
		}
		logger.Trace(addr, "libc", p.String(), "stdin="+input)
		m.SetStdin(input)
		m.SetConcreteRegister("rax", 0)
	case ProcStrlen:
		logger.Trace(addr, "libc", p.String(), "rax=4")
		m.SetConcreteRegister("rax", 4)
	case ProcAtoi:
		logger.Trace(addr, "libc", p.String(), "rax=6")
		m.SetConcreteRegister("rax", 6)
	default:
		logger.Warn("unmodeled procedure", log.Addr(addr), log.Fn(name))
	}
}
