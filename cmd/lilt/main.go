package main

import (
	"fmt"
	"os"

	"github.com/benbjohnson/lilt"
	"github.com/benbjohnson/lilt/internal/log"
	"github.com/benbjohnson/lilt/ir"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	entry      string
	steps      int
	maxPaths   int
	loadMode   string
	verbose    bool
	dump       bool
}

func newRootCommand() *cobra.Command {
	opt := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "lilt",
		Short: "Emulate, taint-track and symbolically execute lifted machine code",
		Long: `Lilt analyses lifted x86-64 machine code without running it natively.

Programs are read from YAML listings of lifted IR. Each subcommand steps an
entry function from the listing with a different semantics: concrete
emulation, taint propagation from marked sources, or symbolic path
exploration. Concrete runs can also be compared step by step against the
Unicorn CPU emulator.

Examples:
  lilt emulate prog.yaml -n 100         # concrete registers after 100 steps
  lilt taint prog.yaml -s rax@0x400812:1 # which values rax influences
  lilt symbolic prog.yaml --solve       # path constraints and inputs
  lilt crosscheck prog.yaml code.bin    # compare against Unicorn
  lilt step prog.yaml                   # interactive stepper`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opt.configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&opt.entry, "entry", "e", "", "entry function (default: config entry, main, _start)")
	flags.IntVarP(&opt.steps, "steps", "n", 0, "maximum steps (default: config step-budget)")
	flags.IntVar(&opt.maxPaths, "max-paths", -1, "maximum live paths (default: config max-paths)")
	flags.StringVar(&opt.loadMode, "load-mode", "", "load semantics: memory or address")
	flags.BoolVarP(&opt.verbose, "verbose", "v", false, "verbose debug output")
	flags.BoolVar(&opt.dump, "dump", false, "dump final states")

	rootCmd.AddCommand(
		newEmulateCommand(opt),
		newTaintCommand(opt),
		newSymbolicCommand(opt),
		newCrossCheckCommand(opt),
		newStepCommand(opt),
	)
	return rootCmd
}

// config reads the config file, if any, and applies flag overrides.
func (opt *globalOptions) config() (lilt.Config, error) {
	config := lilt.DefaultConfig()
	if opt.configPath != "" {
		var err error
		if config, err = lilt.ReadConfigFile(opt.configPath); err != nil {
			return config, err
		}
	}

	if opt.steps > 0 {
		config.StepBudget = opt.steps
	}
	if opt.maxPaths >= 0 {
		config.MaxPaths = opt.maxPaths
	}
	if opt.loadMode != "" {
		config.LoadMode = lilt.LoadMode(opt.loadMode)
	}
	return config, config.Validate()
}

func (opt *globalOptions) logger() *log.Logger {
	return log.New(opt.verbose)
}

// executor loads the listing at path and returns an executor over it.
func (opt *globalOptions) executor(path string) (*lilt.Executor, error) {
	return opt.executorWithLogger(path, opt.logger())
}

func (opt *globalOptions) executorWithLogger(path string, logger *log.Logger) (*lilt.Executor, error) {
	config, err := opt.config()
	if err != nil {
		return nil, err
	}
	prog, err := ir.ReadListingFile(path)
	if err != nil {
		return nil, err
	}
	return lilt.NewExecutor(prog, config, logger), nil
}

func (opt *globalOptions) dumpValue(cmd *cobra.Command, v ...interface{}) {
	if opt.dump {
		fmt.Fprint(cmd.OutOrStdout(), spew.Sdump(v...))
	}
}
