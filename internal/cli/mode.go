package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/safehome/safehome/internal/configuration"
	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

// NewModeCommand creates the mode command and its subcommands.
func NewModeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "List and activate SafeHome modes",
	}
	cmd.AddCommand(newModeListCommand(rootOpts))
	cmd.AddCommand(newModeSetCommand(rootOpts))
	return cmd
}

type modeEntry struct {
	ID      int64   `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Sensors []int64 `json:"sensorIds" yaml:"sensorIds"`
}

func newModeListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the modes and their sensors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				modes, err := store.ListModes(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list modes", err)
				}
				entries := make([]modeEntry, 0, len(modes))
				for _, m := range modes {
					entries = append(entries, modeEntry{ID: m.ID, Name: m.Name, Sensors: m.SensorIDs})
				}
				return opts.formatter(cmd).Render(entries, func(w io.Writer) error {
					for _, e := range entries {
						if _, err := fmt.Fprintf(w, "%d %s %v\n", e.ID, e.Name, e.Sensors); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

type modeResult struct {
	Mode  string  `json:"mode" yaml:"mode"`
	Armed []int64 `json:"armedSensorIds" yaml:"armedSensorIds"`
}

func (r modeResult) String() string {
	return fmt.Sprintf("mode %s active, %d sensors armed %v", r.Mode, len(r.Armed), r.Armed)
}

func newModeSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Arm the sensors of a mode and disarm all others",
		Long: `Arm exactly the sensors of the named mode, update the zone arm state and
store both. Mode names are matched exactly.

Example:
  safehome mode set Away
  safehome mode set "Overnight Travel"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				sensors, err := sensor.Load(ctx, store)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to load sensors", err)
				}
				cfg, err := configuration.Load(ctx, store, sensors)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to load configuration", err)
				}
				if err := cfg.ChangeToMode(ctx, args[0]); err != nil {
					if errors.Is(err, configuration.ErrModeNotFound) {
						return WrapExitError(ExitCommandError, "unknown mode", err)
					}
					return WrapExitError(ExitFailure, "failed to change mode", err)
				}

				md, _ := cfg.ModeByName(args[0])
				res := modeResult{Mode: md.Name, Armed: []int64{}}
				for _, sn := range sensors.List() {
					if sn.Armed {
						res.Armed = append(res.Armed, sn.ID)
					}
				}
				return opts.formatter(cmd).Success(res)
			})
		},
	}
}
