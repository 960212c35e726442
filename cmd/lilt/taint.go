package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/spf13/cobra"
)

func newTaintCommand(opt *globalOptions) *cobra.Command {
	var regSources, memSources []string

	cmd := &cobra.Command{
		Use:   "taint <listing.yaml>",
		Short: "Track which registers and memory words a source influences",
		Long: `Taint runs the entry function and propagates taint from declared sources.

Register sources are written NAME@ADDR:INDEX and taint the register every time
the path reaches the IL instruction at ADDR:INDEX. Memory sources are written
TARGET@ADDR:INDEX and taint the word at TARGET. Conditional branches fork the
path; every path is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opt.executor(args[0])
			if err != nil {
				return err
			}
			t, err := lilt.NewTaintTracker(exec, opt.entry)
			if err != nil {
				return err
			}

			for _, s := range regSources {
				reg, pos, err := parseSource(s)
				if err != nil {
					return err
				} else if err := t.DeclareRegisterSource(0, reg, pos.Addr, pos.Index); err != nil {
					return err
				}
			}
			for _, s := range memSources {
				target, pos, err := parseSource(s)
				if err != nil {
					return err
				}
				addr, err := strconv.ParseUint(target, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid memory source address %q", target)
				} else if err := t.DeclareMemorySource(0, addr, pos.Addr, pos.Index); err != nil {
					return err
				}
			}

			n, err := t.Run(cmd.Context(), opt.steps)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s after %d steps\n", header(fmt.Sprintf("%d paths", len(t.Paths()))), n)
			for i, ts := range t.Paths() {
				fmt.Fprintf(w, "%s %d %s %s:%d", header("path"), i, ts.Status(), address(ts.Pos().Addr), ts.Pos().Index)
				if ts.Err != nil {
					fmt.Fprintf(w, " %s", warn(ts.Err.Error()))
				}
				fmt.Fprintln(w)

				regs := ts.TaintedRegisters()
				fmt.Fprintf(w, "  registers: %s\n", tainted(strings.Join(regs, " ")))

				addrs := make([]string, 0, len(ts.TaintedAddresses()))
				for _, addr := range ts.TaintedAddresses() {
					addrs = append(addrs, log.Hex(addr))
				}
				fmt.Fprintf(w, "  memory:    %s\n", tainted(strings.Join(addrs, " ")))
			}
			opt.dumpValue(cmd, t.Paths())
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&regSources, "source", "s", nil, "register source NAME@ADDR:INDEX")
	cmd.Flags().StringArrayVarP(&memSources, "mem-source", "m", nil, "memory source TARGET@ADDR:INDEX")
	return cmd
}

// parseSource splits a "TARGET@ADDR:INDEX" source declaration.
func parseSource(s string) (target string, pos ir.Pos, err error) {
	target, at, ok := strings.Cut(s, "@")
	if !ok || target == "" {
		return "", pos, fmt.Errorf("invalid source %q: expected TARGET@ADDR:INDEX", s)
	}
	addr, index, ok := strings.Cut(at, ":")
	if !ok {
		return "", pos, fmt.Errorf("invalid source %q: missing IL index", s)
	}

	if pos.Addr, err = strconv.ParseUint(addr, 0, 64); err != nil {
		return "", pos, fmt.Errorf("invalid source address %q", addr)
	} else if pos.Index, err = strconv.Atoi(index); err != nil || pos.Index < 0 {
		return "", pos, fmt.Errorf("invalid source index %q", index)
	}
	return target, pos, nil
}
