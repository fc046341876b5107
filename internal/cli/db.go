package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

// NewDBCommand creates the db command and its subcommands.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the SafeHome database",
		Long: `Create, seed, reset, verify and dump the SafeHome SQLite database.

Example:
  safehome db init --db ./safehome.db
  safehome db dump --db ./safehome.db --format yaml`,
	}

	cmd.AddCommand(newDBInitCommand(rootOpts))
	cmd.AddCommand(newDBSeedCommand(rootOpts))
	cmd.AddCommand(newDBResetCommand(rootOpts))
	cmd.AddCommand(newDBCheckCommand(rootOpts))
	cmd.AddCommand(newDBDumpCommand(rootOpts))

	return cmd
}

// openStore opens the configured database.
func openStore(opts *RootOptions, seedIfEmpty bool) (*sqlite.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.New(sqlite.Config{Path: cfg.DBPath, SeedIfEmpty: seedIfEmpty})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return store, nil
}

// withStore runs fn against the configured database and closes it after.
func withStore(cmd *cobra.Command, opts *RootOptions, seedIfEmpty bool, fn func(ctx context.Context, store *sqlite.Store) error) error {
	store, err := openStore(opts, seedIfEmpty)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, store)
}

type dbResult struct {
	Path    string `json:"path" yaml:"path"`
	Action  string `json:"action" yaml:"action"`
	Version int    `json:"version" yaml:"version"`
}

func (r dbResult) String() string {
	return fmt.Sprintf("%s: %s (schema version %d)", r.Path, r.Action, r.Version)
}

func reportDB(ctx context.Context, cmd *cobra.Command, opts *RootOptions, store *sqlite.Store, action string) error {
	v, err := store.Version(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read schema version", err)
	}
	return opts.formatter(cmd).Success(dbResult{Path: store.Path(), Action: action, Version: v})
}

func newDBInitCommand(opts *RootOptions) *cobra.Command {
	var noSeed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the schema and load the initial data into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, !noSeed, func(ctx context.Context, store *sqlite.Store) error {
				action := "initialized"
				if noSeed {
					action = "schema created"
				}
				return reportDB(ctx, cmd, opts, store, action)
			})
		},
	}
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "create the schema only")
	return cmd
}

func newDBSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the initial data",
		Long: `Load the initial users, settings, sensors, cameras, zones and modes in one
transaction. Fails without changes when the data is already present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.Seed(ctx); err != nil {
					if errors.Is(err, storage.ErrAlreadyExists) {
						return WrapExitError(ExitFailure, "database is already seeded", err)
					}
					return WrapExitError(ExitFailure, "failed to seed database", err)
				}
				return reportDB(ctx, cmd, opts, store, "seeded")
			})
		},
	}
}

func newDBResetCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every table and restore the initial data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "reset deletes all data; pass --yes to confirm")
			}
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.Reset(ctx); err != nil {
					return WrapExitError(ExitFailure, "failed to reset database", err)
				}
				return reportDB(ctx, cmd, opts, store, "reset")
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

type checkResult struct {
	Path     string         `json:"path" yaml:"path"`
	Version  int            `json:"version" yaml:"version"`
	Problems []string       `json:"problems" yaml:"problems"`
	Stats    *storage.Stats `json:"stats" yaml:"stats"`
}

func newDBCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run integrity and foreign key checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				problems, err := store.Check(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "check failed", err)
				}
				v, err := store.Version(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read schema version", err)
				}
				stats, err := store.Stats(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read statistics", err)
				}

				res := checkResult{Path: store.Path(), Version: v, Problems: problems, Stats: stats}
				if res.Problems == nil {
					res.Problems = []string{}
				}
				if err := opts.formatter(cmd).Render(res, func(w io.Writer) error {
					return writeCheck(w, res)
				}); err != nil {
					return err
				}
				if len(problems) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d integrity problems found", len(problems)))
				}
				return nil
			})
		},
	}
}

func writeCheck(w io.Writer, res checkResult) error {
	fmt.Fprintf(w, "%s (schema version %d)\n", res.Path, res.Version)
	fmt.Fprintf(w, "users=%d logs=%d sensors=%d cameras=%d zones=%d modes=%d size=%dB\n",
		res.Stats.Users, res.Stats.Logs, res.Stats.Sensors, res.Stats.Cameras,
		res.Stats.Zones, res.Stats.Modes, res.Stats.DiskSizeBytes)
	if len(res.Problems) == 0 {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	for _, p := range res.Problems {
		fmt.Fprintf(w, "problem: %s\n", p)
	}
	return nil
}

func newDBDumpCommand(opts *RootOptions) *cobra.Command {
	var (
		skipTimestamps bool
		tables         []string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the content of every table",
		Long: `Print every table in rowid order. Text output is one block per table with
pipe-separated columns and NULL for missing values.

Example:
  safehome db dump --skip-timestamps
  safehome db dump --table users,system_settings --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				dumps, err := store.Dump(ctx, skipTimestamps)
				if err != nil {
					return WrapExitError(ExitFailure, "dump failed", err)
				}
				if len(tables) > 0 {
					dumps, err = filterTables(dumps, tables)
					if err != nil {
						return err
					}
				}
				return opts.formatter(cmd).Render(dumps, func(w io.Writer) error {
					return writeDump(w, dumps)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&skipTimestamps, "skip-timestamps", false, "leave out wall clock columns")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "dump only these tables")
	return cmd
}

func filterTables(dumps []sqlite.TableDump, names []string) ([]sqlite.TableDump, error) {
	var out []sqlite.TableDump
	for _, name := range names {
		i := slices.IndexFunc(dumps, func(d sqlite.TableDump) bool { return d.Name == name })
		if i < 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q", name))
		}
		out = append(out, dumps[i])
	}
	return out, nil
}

// writeDump writes each table as a "# name" line, a header and one line
// per row, with blank lines between tables.
func writeDump(w io.Writer, dumps []sqlite.TableDump) error {
	for i, d := range dumps {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "# %s\n", d.Name)
		fmt.Fprintln(w, strings.Join(d.Columns, "|"))
		for _, row := range d.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = formatCell(v)
			}
			if _, err := fmt.Fprintln(w, strings.Join(cells, "|")); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
