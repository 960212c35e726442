package main

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/charmbracelet/lipgloss"
)

// Terminal palette.
const (
	colorAddress  = lipgloss.Color("#808080")
	colorRegister = lipgloss.Color("#87CEEB")
	colorValue    = lipgloss.Color("#FF80C0")
	colorLabel    = lipgloss.Color("#FFC800")
	colorWarn     = lipgloss.Color("#FF8000")
	colorTaint    = lipgloss.Color("#FF5F5F")
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorLabel)
	addressStyle  = lipgloss.NewStyle().Foreground(colorAddress)
	registerStyle = lipgloss.NewStyle().Foreground(colorRegister).Width(7)
	valueStyle    = lipgloss.NewStyle().Foreground(colorValue)
	warnStyle     = lipgloss.NewStyle().Foreground(colorWarn)
	taintStyle    = lipgloss.NewStyle().Foreground(colorTaint).Bold(true)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
)

// noColor returns true if colors are disabled via environment.
func noColor() bool {
	return os.Getenv("LILT_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func header(s string) string {
	if noColor() {
		return s
	}
	return headerStyle.Render(s)
}

func address(addr uint64) string {
	if noColor() {
		return log.Hex(addr)
	}
	return addressStyle.Render(log.Hex(addr))
}

// registerLine renders a "name  value" row.
func registerLine(name, value string) string {
	if noColor() {
		return name + " " + value
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, registerStyle.Render(name), valueStyle.Render(value))
}

func warn(s string) string {
	if noColor() {
		return s
	}
	return warnStyle.Render(s)
}

func tainted(s string) string {
	if noColor() {
		return s
	}
	return taintStyle.Render(s)
}

// highlightAsm colorizes an Intel-syntax instruction with the nasm lexer.
func highlightAsm(insn string) string {
	if noColor() {
		return insn
	}
	lexer := lexers.Get("nasm")
	if lexer == nil {
		return insn
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		return insn
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
