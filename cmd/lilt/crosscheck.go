package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/benbjohnson/lilt/internal/native"
	"github.com/spf13/cobra"
)

func newCrossCheckCommand(opt *globalOptions) *cobra.Command {
	var (
		base string
		regs []string
	)

	cmd := &cobra.Command{
		Use:   "crosscheck <listing.yaml> <code.bin>",
		Short: "Compare emulated registers against native execution under Unicorn",
		Long: `Crosscheck loads the raw machine code in code.bin at the base address and
runs it under Unicorn alongside the emulator. Each time the emulator reaches a
new machine instruction the native program is advanced to the same address and
the general-purpose registers are compared.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := opt.executor(args[0])
			if err != nil {
				return err
			}
			code, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			baseAddr, err := strconv.ParseUint(base, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid base address %q", base)
			}

			s, err := exec.NewEntryState(opt.entry)
			if err != nil {
				return err
			}
			emu, err := native.New(code, baseAddr, s.Addr, native.Options{
				StackPointer: exec.Config.StackPointer,
				Logger:       exec.Logger,
			})
			if err != nil {
				return err
			}
			defer emu.Close()
			if err := emu.LoadState(s); err != nil {
				return err
			}

			cc := native.NewCrossChecker(exec, emu, exec.Logger)
			if len(regs) > 0 {
				cc.Registers = regs
			}
			mismatches, err := cc.Run(cmd.Context(), s, exec.Config.StepBudget)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %d instructions, %d mismatches\n", header("crosscheck"), cc.Checked, len(mismatches))
			for _, m := range mismatches {
				insn, _, err := emu.Disassemble(m.Pos.Addr)
				if err != nil {
					insn = "??"
				}
				fmt.Fprintf(w, "%s:%d %-32s %s emulated=%#x native=%#x\n",
					address(m.Pos.Addr), m.Pos.Index, highlightAsm(insn), warn(m.Reg), m.Emulated, m.Native)
			}
			opt.dumpValue(cmd, mismatches)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "0x400000", "load address of code.bin")
	cmd.Flags().StringSliceVar(&regs, "regs", nil, "registers to compare (default: general purpose)")
	return cmd
}
