package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/benbjohnson/lilt"
	"github.com/spf13/cobra"
)

func newEmulateCommand(opt *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emulate <listing.yaml>",
		Short: "Run the entry function with concrete 64-bit values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opt.executor(args[0])
			if err != nil {
				return err
			}
			s, err := exec.NewEntryState(opt.entry)
			if err != nil {
				return err
			}

			n, err := exec.Run(cmd.Context(), s, opt.steps)
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintln(cmd.OutOrStdout(), warn(err.Error()))
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s after %d steps\n", header(string(s.Status)), n)
			printState(w, s)
			opt.dumpValue(cmd, s)
			return nil
		},
	}
}

// printState writes the position, registers, flags and memory of s.
func printState(w io.Writer, s *lilt.State) {
	fmt.Fprintf(w, "pos %s:%d stdin=%q\n", address(s.Addr), s.Index, s.Stdin)
	if len(s.CallStack) > 0 {
		fmt.Fprint(w, "stack")
		for _, addr := range s.CallStack {
			fmt.Fprint(w, " ", address(addr))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, header("registers"))
	for _, r := range s.Registers() {
		fmt.Fprintln(w, registerLine(r.Name, fmt.Sprintf("%#x", r.Value)))
	}
	if flags := s.Flags(); len(flags) > 0 {
		fmt.Fprintln(w, header("flags"))
		for _, f := range flags {
			fmt.Fprintln(w, registerLine(f.Name, fmt.Sprintf("%d", f.Value)))
		}
	}
	if mem := s.Memory(); len(mem) > 0 {
		fmt.Fprintln(w, header("memory"))
		for _, m := range mem {
			fmt.Fprintf(w, "%s %#x\n", address(m.Addr), m.Value)
		}
	}
}
