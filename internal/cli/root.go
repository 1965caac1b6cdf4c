package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"areazero/internal/cliutil"
	"areazero/internal/config"
	"areazero/internal/engine"
	"areazero/internal/runtime"
	"areazero/internal/runtime/process"
)

const eventBuffer = 16

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	settings := config.FromEnv()
	ctx := &context{
		settings: &settings,
		launcher: process.New(),
		notify:   notifyTerminate,
	}

	root := &cobra.Command{
		Use:   "areazero",
		Short: "Keep a single server executable running",
		Long: `areazero launches one server executable and relaunches it whenever it
exits. On SIGTERM the signal is forwarded to the running server and, after a
grace period, a fresh instance is started.

areazero never exits on its own. Stop it with SIGKILL; the running server is
left to the operating system and can then be sent SIGTERM directly.`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.settings.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&settings.Executable, "exec", "e", settings.Executable, "Path to the executable to supervise")
	flags.StringArrayVar(&settings.Args, "arg", settings.Args, "Argument passed to the executable (repeatable)")
	flags.StringVar(&settings.Workdir, "workdir", settings.Workdir, "Working directory for the executable")
	flags.DurationVar(&settings.GracePeriod.Duration, "grace-period", settings.GracePeriod.Duration, "Time to wait after forwarding SIGTERM before relaunching")
	flags.DurationVar(&settings.PollInterval.Duration, "poll-interval", settings.PollInterval.Duration, "Interval between liveness checks")
	flags.IntVar(&settings.SpawnRetries, "spawn-retries", settings.SpawnRetries, "Additional launch attempts before a spawn failure is fatal")
	flags.BoolVar(&settings.ProcessGroup, "process-group", settings.ProcessGroup, "Run the executable in its own process group and signal the whole group")
	flags.StringVar(&settings.LogFormat, "log-format", settings.LogFormat, "Log output format (text or json)")

	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	settings *config.Settings
	launcher runtime.Launcher
	notify   func(chan<- os.Signal) func()
}

func notifyTerminate(ch chan<- os.Signal) func() {
	signal.Notify(ch, terminateSignals()...)
	return func() {
		signal.Stop(ch)
	}
}

func (c *context) run(cmd *cobra.Command) error {
	events := make(chan engine.Event, eventBuffer)
	printer := cliutil.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), c.settings.LogFormat)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		printer.Drain(events)
	}()

	// Signal handlers only enqueue; the supervisor loop does the work.
	terminate := make(chan os.Signal, 1)
	stop := c.notify(terminate)
	defer stop()

	sup := engine.New(c.launcher, engine.Options{
		Spec:         c.settings.Spec(),
		GracePeriod:  c.settings.GracePeriod.Duration,
		PollInterval: c.settings.PollInterval.Duration,
		SpawnRetries: c.settings.SpawnRetries,
		Signal:       syscall.SIGTERM,
		Events:       events,
	})

	err := sup.Run(cmd.Context(), terminate)
	close(events)
	<-drained
	return err
}
