package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

// NewLogsCommand creates the logs command and its subcommands.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect and prune the stored logs",
	}
	cmd.AddCommand(newLogsListCommand(rootOpts))
	cmd.AddCommand(newLogsPruneCommand(rootOpts))
	return cmd
}

type logEntry struct {
	ID       int64     `json:"id" yaml:"id"`
	Time     time.Time `json:"timestamp" yaml:"timestamp"`
	Level    string    `json:"level" yaml:"level"`
	File     string    `json:"filename" yaml:"filename"`
	Function string    `json:"functionName" yaml:"functionName"`
	Line     int       `json:"lineNumber" yaml:"lineNumber"`
	Message  string    `json:"message" yaml:"message"`
}

func newLogsListCommand(opts *RootOptions) *cobra.Command {
	var (
		level string
		limit int
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log records, oldest first",
		Long: `List stored log records in the log file format, oldest first.

Example:
  safehome logs list --level ERROR --since 24h
  safehome logs list --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.LogQuery{Limit: limit}
			if level != "" {
				q.Level = storage.ParseLevel(level)
				if q.Level == storage.LevelUnknown {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown level %q", level))
				}
			}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}

			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				recs, err := store.QueryLogs(ctx, q)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to query logs", err)
				}
				slices.Reverse(recs)

				entries := make([]logEntry, 0, len(recs))
				for _, rec := range recs {
					entries = append(entries, logEntry{
						ID:       rec.ID,
						Time:     rec.Timestamp,
						Level:    rec.Level.String(),
						File:     rec.Filename,
						Function: rec.FunctionName,
						Line:     rec.LineNumber,
						Message:  rec.Message,
					})
				}
				return opts.formatter(cmd).Render(entries, func(w io.Writer) error {
					return writeLogLines(w, entries)
				})
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "only records of this level")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of records")
	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this age")
	return cmd
}

// writeLogLines uses the log file line layout.
func writeLogLines(w io.Writer, entries []logEntry) error {
	for _, e := range entries {
		_, err := fmt.Fprintf(w, "[%s] [%s] [%s:%d] [%s] | %s\n",
			e.Level, e.Time.Local().Format(time.DateTime), e.File, e.Line, e.Function, e.Message)
		if err != nil {
			return err
		}
	}
	return nil
}

type pruneResult struct {
	Deleted int64     `json:"deleted" yaml:"deleted"`
	Before  time.Time `json:"before" yaml:"before"`
}

func (r pruneResult) String() string {
	return fmt.Sprintf("deleted %d log records older than %s", r.Deleted, r.Before.Format(time.RFC3339))
}

func newLogsPruneCommand(opts *RootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old log records",
		Long: `Delete log records older than --older-than. Without the flag the
configured retention_days is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			var cutoff time.Time
			switch {
			case olderThan > 0:
				cutoff = time.Now().Add(-olderThan)
			case cfg.RetentionEnabled():
				cutoff = cfg.RetentionCutoff()
			default:
				return NewExitError(ExitCommandError, "no retention configured; pass --older-than")
			}

			return withStore(cmd, opts, false, func(ctx context.Context, store *sqlite.Store) error {
				n, err := store.DeleteLogsBefore(ctx, cutoff)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to delete logs", err)
				}
				return opts.formatter(cmd).Success(pruneResult{Deleted: n, Before: cutoff})
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "delete records older than this age")
	return cmd
}
