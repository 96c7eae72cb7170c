// mutarun runs Muta guest programs compiled to WebAssembly against a local
// reference host.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaelescrich/mutago/abi"
	"github.com/rafaelescrich/mutago/hostvm"
	"github.com/rafaelescrich/mutago/wasmhost"
)

var (
	Version = "dev"
	Commit  = "none"
)

type runOptions struct {
	contextPath string
	args        string
	extra       string
	maxPages    uint32
	entry       string
	verbose     bool
}

func main() {
	code, err := newRootCmd(os.Stdout, os.Stderr).execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(code)
}

type rootCmd struct {
	*cobra.Command
	// exitCode is the guest's exit code after a run, carried out of RunE.
	exitCode int
}

func (r *rootCmd) execute() (int, error) {
	if err := r.Execute(); err != nil {
		return 0, err
	}
	return r.exitCode, nil
}

func newRootCmd(stdout, stderr io.Writer) *rootCmd {
	root := &rootCmd{Command: &cobra.Command{
		Use:   "mutarun",
		Short: "Run Muta contract guests locally",
		Long: `mutarun executes a guest compiled to WebAssembly against an in-memory
reference host and reports its exit code, return payload, debug output and
events. The process exits with the guest's exit code.`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)

	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run <guest.wasm>",
		Short: "Run a guest once and print its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			wasm, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read guest: %w", err)
			}
			out, err := runGuest(cmd.Context(), wasm, opts, logger)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			root.exitCode = guestExitCode(out)
			return nil
		},
	}
	runCmd.Flags().StringVar(&opts.contextPath, "context", "", "YAML file describing the chain context")
	runCmd.Flags().StringVar(&opts.args, "args", "", "Invocation arguments, overrides the context file")
	runCmd.Flags().StringVar(&opts.extra, "extra", "", "Extra payload, overrides the context file")
	runCmd.Flags().Uint32Var(&opts.maxPages, "max-memory-pages", wasmhost.DefaultRuntimeConfig().MaxMemoryPages, "Guest memory limit in 64KB pages")
	runCmd.Flags().StringVar(&opts.entry, "entry", wasmhost.DefaultRuntimeConfig().Entry, "Exported function to call")
	runCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every syscall")

	codesCmd := &cobra.Command{
		Use:   "codes",
		Short: "Print the syscall code registry",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printCodes(cmd.OutOrStdout())
		},
	}

	root.AddCommand(runCmd, codesCmd)
	return root
}

func runGuest(ctx context.Context, wasm []byte, opts runOptions, logger *slog.Logger) (hostvm.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	chain := hostvm.DefaultContext()
	if opts.contextPath != "" {
		var err error
		if chain, err = hostvm.LoadContext(opts.contextPath); err != nil {
			return hostvm.Outcome{}, err
		}
	}
	if opts.args != "" {
		chain.Args = opts.args
	}
	if opts.extra != "" {
		chain.Extra = opts.extra
	}

	rt, err := wasmhost.NewRuntime(ctx, wasmhost.RuntimeConfig{
		MaxMemoryPages: opts.maxPages,
		Entry:          opts.entry,
	}, logger)
	if err != nil {
		return hostvm.Outcome{}, err
	}
	defer rt.Close(ctx)

	vm := hostvm.New(hostvm.WithContext(chain), hostvm.WithLogger(logger))
	return rt.Run(ctx, wasm, vm)
}

// guestExitCode maps an outcome to a process exit status. A guest stopped
// without exiting reports 1.
func guestExitCode(out hostvm.Outcome) int {
	if !out.Exited {
		return 1
	}
	return int(out.ExitCode & 0xff)
}

func printOutcome(w io.Writer, out hostvm.Outcome) {
	if out.Exited {
		fmt.Fprintf(w, "exit code: %d\n", out.ExitCode)
	}
	if out.Err != nil {
		fmt.Fprintf(w, "stopped: %v\n", out.Err)
	}
	fmt.Fprintf(w, "return: %q\n", out.Return)
	for _, line := range out.Debug {
		fmt.Fprintf(w, "debug: %s\n", line)
	}
	for _, ev := range out.Events {
		fmt.Fprintf(w, "event: %s %s\n", ev.Name, ev.Data)
	}
}

func printCodes(w io.Writer) {
	for _, code := range abi.Codes() {
		name, _ := abi.Name(code)
		fmt.Fprintf(w, "%5d  %s\n", code, name)
	}
}
