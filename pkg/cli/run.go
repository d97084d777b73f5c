package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/woliveiras/usbdup/pkg/dup"
)

// Exit codes. 42 covers both usage errors and operator-initiated aborts,
// distinguishing them from runtime copy failures.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 42
)

// usageError marks errors that should exit with ExitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// App carries the effective configuration and the injectable collaborators
// (UI, command runner, device system). Tests swap the collaborators for
// fakes; main uses the defaults.
type App struct {
	UI     UI
	Runner dup.Runner
	System dup.System
	Out    io.Writer

	// CheckTools verifies the external utilities are installed before a
	// destructive command. Nil skips the check (tests with a fake runner).
	CheckTools func(needEject bool) error

	ConfigPath   string
	Source       string
	Verify       bool
	Eject        bool
	Quiet        bool
	Yes          bool
	ThresholdMiB uint64

	cfg dup.Config
}

// NewApp returns an App wired to the real OS collaborators.
func NewApp() *App {
	return &App{
		UI:         NewStdUI(),
		Runner:     dup.ExecRunner{},
		System:     dup.DefaultSystem,
		Out:        os.Stdout,
		CheckTools: dup.CheckPrerequisites,
	}
}

func (app *App) checkTools() error {
	if app.CheckTools == nil {
		return nil
	}
	return app.CheckTools(app.Eject)
}

// Main is the process entrypoint: it runs the CLI with signal-driven
// cancellation and maps the resulting error to an exit code.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := Run(ctx, NewApp(), args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usbdup: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps an error from Run to the process exit status: 0 on success,
// 42 for usage errors and operator aborts, 1 for everything else.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, dup.ErrAborted), errors.Is(err, context.Canceled):
		return ExitUsage
	case errors.As(err, &ue):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Run executes the command tree against the given App.
func Run(ctx context.Context, app *App, args []string) error {
	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return usageError{err: err}
	}
	return err
}

// NewRootCommand builds the usbdup command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "usbdup",
		Short:         "Duplicate an image or file tree onto many USB devices in parallel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&app.Source, "source", "s", "", "source image file or directory tree")
	pf.BoolVar(&app.Verify, "verify", false, "verify each copy against the source checksum (image mode)")
	pf.BoolVar(&app.Eject, "eject", false, "eject media after a successful copy")
	pf.StringVar(&app.ConfigPath, "config", "", "defaults file (default "+dup.DefaultConfigPath()+")")
	pf.Uint64Var(&app.ThresholdMiB, "threshold", dup.DefaultThresholdMiB, "refuse devices at or above this size in MiB")
	pf.BoolVarP(&app.Quiet, "quiet", "q", false, "suppress informational output")
	pf.BoolVarP(&app.Yes, "yes", "y", false, "skip the confirmation prompt (unattended batches)")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.AddCommand(newEnumCommand(app))
	root.AddCommand(newCopyCommand(app))
	root.AddCommand(newVerifyCommand(app))
	root.AddCommand(newBatchCopyCommand(app))

	return root
}

// setup loads the defaults file and folds it under any flags the user did not
// set explicitly, then installs the logger.
func (app *App) setup(cmd *cobra.Command) error {
	path := app.ConfigPath
	explicit := path != ""
	if !explicit {
		path = dup.DefaultConfigPath()
	}

	cfg := dup.DefaultConfig()
	if path != "" {
		loaded, err := dup.LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			// No defaults file is fine.
		default:
			return err
		}
	}
	app.cfg = cfg

	flags := cmd.Flags()
	if !flags.Changed("source") && cfg.Source != "" {
		app.Source = cfg.Source
	}
	if !flags.Changed("verify") {
		app.Verify = cfg.Verify
	}
	if !flags.Changed("eject") {
		app.Eject = cfg.Eject
	}
	if !flags.Changed("threshold") {
		app.ThresholdMiB = cfg.ThresholdMiB
	}

	dup.SetLogger(dup.NewColorLogger(os.Stderr, app.Quiet))
	return nil
}

func (app *App) openSource() (*dup.Source, error) {
	return dup.OpenSource(app.Source)
}
