package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/woliveiras/usbdup/pkg/dup"
)

func newEnumCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "enum",
		Short: "List attached validated USB devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := dup.Enumerate(cmd.Context(), app.System, app.ThresholdMiB)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(app.Out, "no validated devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(app.Out, d.String())
			}
			return nil
		},
	}
}

func newCopyCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <device>",
		Short: "Copy the source onto a single device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("copy takes exactly one device argument")
			}

			src, err := app.openSource()
			if err != nil {
				return err
			}
			if err := app.checkTools(); err != nil {
				return err
			}

			ctx := cmd.Context()
			dev, err := dup.Validate(ctx, app.System, args[0], app.ThresholdMiB)
			if err != nil {
				return err
			}

			if src.IsDir {
				err = dup.CopyTree(ctx, app.Runner, app.System, src, dev, app.cfg.Excludes)
			} else {
				if app.Verify {
					if _, derr := src.Digest(true); derr != nil {
						return derr
					}
				}
				err = dup.CopyImage(ctx, app.Runner, src, dev, app.Verify)
			}
			if err != nil {
				return err
			}

			if app.Eject {
				if err := dup.Eject(ctx, app.Runner, dev); err != nil {
					return err
				}
			}
			fmt.Fprintf(app.Out, "%s: done\n", dev.Path)
			return nil
		},
	}
}

func newVerifyCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Checksum-compare the source against every attached validated device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := app.openSource()
			if err != nil {
				return err
			}
			if src.IsDir {
				return usagef("verify needs an image source, %s is a directory", src.Path)
			}
			if _, err := src.Digest(true); err != nil {
				return err
			}

			ctx := cmd.Context()
			devices, err := dup.Enumerate(ctx, app.System, app.ThresholdMiB)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(app.Out, "no validated devices found")
				return nil
			}

			failed := 0
			for _, d := range devices {
				ok, err := src.VerifyDevice(d.Path, !app.Quiet)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(app.Out, "%s: %s: %v\n", d.Path, color.RedString("error"), err)
				case ok:
					fmt.Fprintf(app.Out, "%s: %s\n", d.Path, color.GreenString("passed"))
				default:
					failed++
					fmt.Fprintf(app.Out, "%s: %s\n", d.Path, color.RedString("FAILED"))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d devices failed verification", failed, len(devices))
			}
			return nil
		},
	}
}

func newBatchCopyCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "batchcopy [min_count]",
		Short: "Run repeated copy rounds, swapping media between rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			minCount := 1
			switch len(args) {
			case 0:
			case 1:
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return usagef("min_count must be a positive integer, got %q", args[0])
				}
				minCount = n
			default:
				return usagef("batchcopy takes at most one min_count argument")
			}

			src, err := app.openSource()
			if err != nil {
				return err
			}
			if err := app.checkTools(); err != nil {
				return err
			}

			orch := dup.NewOrchestrator(app.System, app.Runner, src, app.confirmRound, dup.BatchOptions{
				MinCount:     minCount,
				Verify:       app.Verify,
				Eject:        app.Eject,
				ThresholdMiB: app.ThresholdMiB,
				PollInterval: time.Duration(app.cfg.PollInterval),
				Excludes:     app.cfg.Excludes,
				JournalPath:  app.cfg.Journal,
			})
			return orch.Run(cmd.Context())
		},
	}
}

// confirmRound is the operator safety gate: the next phase overwrites every
// listed device, so it blocks on an explicit acknowledgement unless --yes was
// given.
func (app *App) confirmRound(round int, devices []dup.Device) (bool, error) {
	app.UI.Printf("round %d: about to overwrite %d device(s):\n", round, len(devices))
	for _, d := range devices {
		app.UI.Println("  -", d.String())
	}
	if app.Yes {
		return true, nil
	}

	ans, err := app.UI.Ask("press ENTER to copy, or type q to stop: ")
	if err != nil {
		return false, dup.ErrAborted
	}
	return !strings.EqualFold(strings.TrimSpace(ans), "q"), nil
}
