package main

import (
	"fmt"
	"io"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/z3"
	"github.com/spf13/cobra"
)

func newSymbolicCommand(opt *globalOptions) *cobra.Command {
	var (
		symbolic []string
		search   string
		solve    bool
	)

	cmd := &cobra.Command{
		Use:   "symbolic <listing.yaml>",
		Short: "Explore paths with symbolic registers and report their constraints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opt.executor(args[0])
			if err != nil {
				return err
			}
			exec.Config.SymbolicRegisters = append(exec.Config.SymbolicRegisters, symbolic...)
			if search != "" {
				exec.Config.Search = lilt.SearchStrategy(search)
			}
			if err := exec.Config.Validate(); err != nil {
				return err
			}

			x, err := lilt.NewSymbolicExecutor(exec, opt.entry)
			if err != nil {
				return err
			}
			n, err := x.Run(cmd.Context(), opt.steps)
			if err != nil {
				return err
			}

			var solver lilt.Solver
			var z3Solver *z3.Solver
			if solve {
				z3Solver = z3.NewSolver()
				defer z3Solver.Close()
				solver = z3Solver
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s after %d steps\n", header(fmt.Sprintf("%d states", len(x.States()))), n)
			for _, s := range x.States() {
				if err := printSymbolicState(w, s, solver); err != nil {
					return err
				}
			}
			if z3Solver != nil {
				stats := z3Solver.Stats()
				fmt.Fprintf(w, "solver: %d queries in %s\n", stats.SolveN, stats.SolveTime)
			}
			opt.dumpValue(cmd, x.States())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&symbolic, "symbolic", nil, "register starting as a fresh symbol (repeatable)")
	cmd.Flags().StringVar(&search, "search", "", "search strategy: dfs, bfs, random or multi")
	cmd.Flags().BoolVar(&solve, "solve", false, "solve each path's constraints with z3")
	return cmd
}

// printSymbolicState writes a state's position, constraints, symbolic
// accesses and, if solver is non-nil, a satisfying model.
func printSymbolicState(w io.Writer, s *lilt.SymbolicState, solver lilt.Solver) error {
	fmt.Fprintf(w, "%s %d %s %s:%d", header("state"), s.ID, s.Status, address(s.Addr), s.Index)
	if s.Err != nil {
		fmt.Fprintf(w, " %s", warn(s.Err.Error()))
	}
	fmt.Fprintln(w)

	for _, c := range s.Constraints {
		fmt.Fprintf(w, "  assert %s\n", c)
	}
	for _, a := range s.Accesses {
		fmt.Fprintf(w, "  %s\n", warn(a.String()))
	}
	if rax := s.Register("rax"); lilt.KindOf(rax) != lilt.Concrete {
		fmt.Fprintf(w, "  rax = %s\n", rax)
	}

	if solver == nil {
		return nil
	}
	satisfiable, model, err := s.Check(solver)
	if err != nil {
		return err
	} else if !satisfiable {
		fmt.Fprintf(w, "  %s\n", warn("unsatisfiable"))
		return nil
	}
	for _, name := range model.Names() {
		fmt.Fprintf(w, "  %s\n", registerLine(name, fmt.Sprintf("%#x", model[name])))
	}
	return nil
}
