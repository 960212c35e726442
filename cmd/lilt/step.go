package main

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newStepCommand(opt *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "step <listing.yaml>",
		Short: "Step through the entry function interactively",
		Long: `Step opens an interactive view of a concrete state.

Keys:
  s, n, space   execute one instruction
  r             run 100 instructions
  b             undo the last step
  q, ctrl+c     quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Diagnostics are shown in the view instead of on stderr.
			logger := log.NewNop()
			exec, err := opt.executorWithLogger(args[0], logger)
			if err != nil {
				return err
			}
			s, err := exec.NewEntryState(opt.entry)
			if err != nil {
				return err
			}

			m := newStepModel(exec, s)
			logger.SetOnTrace(m.trace)

			p := tea.NewProgram(m, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
			_, err = p.Run()
			return err
		},
	}
}

const maxTraceLines = 8

// stepModel is the bubbletea model of the interactive stepper.
type stepModel struct {
	exec    *lilt.Executor
	state   *lilt.State
	history []*lilt.State
	steps   int
	err     error
	traces  *[]string
}

func newStepModel(exec *lilt.Executor, s *lilt.State) stepModel {
	return stepModel{exec: exec, state: s, traces: new([]string)}
}

// trace records a stub side effect for display.
func (m stepModel) trace(addr uint64, category, name, detail string) {
	line := fmt.Sprintf("%s %s %s %s", log.Hex(addr), category, name, detail)
	*m.traces = append(*m.traces, line)
	if n := len(*m.traces); n > maxTraceLines {
		*m.traces = (*m.traces)[n-maxTraceLines:]
	}
}

func (m stepModel) Init() tea.Cmd { return nil }

func (m stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "s", "n", " ", "space":
		m = m.step(1)
	case "r":
		m = m.step(100)
	case "b":
		if n := len(m.history); n > 0 {
			m.state, m.history = m.history[n-1], m.history[:n-1]
			m.steps--
			m.err = nil
		}
	}
	return m, nil
}

// step executes up to n instructions, saving the prior state for undo.
func (m stepModel) step(n int) stepModel {
	for i := 0; i < n; i++ {
		if m.state.Terminated() {
			return m
		}
		prev := m.state.Clone()
		m.err = m.exec.Step(m.state)
		m.history = append(m.history, prev)
		m.steps++
		if m.err != nil {
			return m
		}
	}
	return m
}

// currentInst returns the text of the instruction at the cursor.
func (m stepModel) currentInst() string {
	fn := m.exec.Program.FunctionContaining(m.state.Addr)
	if fn == nil {
		return "<no function>"
	}
	inst, ok := m.exec.Program.InstructionAtIndex(fn, m.state.Index)
	if !ok {
		return fn.Name + " <end>"
	}
	return fmt.Sprintf("%s: %s", fn.Name, inst)
}

func (m stepModel) View() string {
	s := m.state

	var top strings.Builder
	fmt.Fprintf(&top, "%s  step %d  %s\n", header("lilt"), m.steps, s.Status)
	fmt.Fprintf(&top, "%s:%d  %s", address(s.Addr), s.Index, cursorStyle.Render(m.currentInst()))
	if m.err != nil {
		fmt.Fprintf(&top, "\n%s", warn(m.err.Error()))
	}

	var regs strings.Builder
	for _, r := range s.Registers() {
		fmt.Fprintln(&regs, registerLine(r.Name, fmt.Sprintf("%#018x", r.Value)))
	}

	var mem strings.Builder
	fmt.Fprintln(&mem, header("memory"))
	for _, v := range s.Memory() {
		fmt.Fprintf(&mem, "%s %#x\n", address(v.Addr), v.Value)
	}
	fmt.Fprintln(&mem, header("flags"))
	for _, f := range s.Flags() {
		fmt.Fprintln(&mem, registerLine(f.Name, fmt.Sprintf("%d", f.Value)))
	}
	if len(s.CallStack) > 0 {
		fmt.Fprintln(&mem, header("call stack"))
		for _, addr := range s.CallStack {
			fmt.Fprintln(&mem, address(addr))
		}
	}
	fmt.Fprintf(&mem, "%s\n%q", header("stdin"), s.Stdin)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(strings.TrimSuffix(regs.String(), "\n")),
		boxStyle.Render(mem.String()),
	)

	var traces strings.Builder
	fmt.Fprintln(&traces, header("trace"))
	for _, line := range *m.traces {
		fmt.Fprintln(&traces, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Render(top.String()),
		body,
		boxStyle.Render(strings.TrimSuffix(traces.String(), "\n")),
		addressStyle.Render("s step  r run 100  b back  q quit"),
	)
}
