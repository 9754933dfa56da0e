package logcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/flolog/internal/eventlog"
	"github.com/rzbill/flolog/internal/filter"
	"github.com/rzbill/flolog/internal/logfile"
	"github.com/rzbill/flolog/internal/merge"
	"github.com/rzbill/flolog/internal/record"
	"github.com/rzbill/flolog/internal/runtime"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const followPoll = 250 * time.Millisecond

// startCursor positions a cursor at --from, or after the committed cursor
// of --group when --from is not given.
func startCursor(cmd *cobra.Command, l *eventlog.Log) *eventlog.Cursor {
	from, _ := cmd.Flags().GetUint64("from")
	group, _ := cmd.Flags().GetString("group")
	if group != "" && !cmd.Flags().Changed("from") {
		return l.ResumeCursor(group)
	}
	return l.NewCursor(eventlog.TokenFromSeq(from))
}

// cursorSource wraps cur so undecodable entries are skipped when
// --skip-corrupt (or reader.skipCorrupt in the config) asks for it.
func cursorSource(cmd *cobra.Command, rt *runtime.Runtime, cur *eventlog.Cursor) merge.Source {
	skip := rt.Config().Reader.SkipCorrupt
	if cmd.Flags().Changed("skip-corrupt") {
		skip, _ = cmd.Flags().GetBool("skip-corrupt")
	}
	if !skip {
		return cur
	}
	logger := rt.Logger()
	return merge.SkipCorrupt(cur, func(err error) {
		logger.Warn("skipping corrupt entry", logpkg.Err(err))
	})
}

// readErr adds the --skip-corrupt hint to recoverable errors.
func readErr(err error) error {
	if record.IsRecoverable(err) {
		return fmt.Errorf("%w (use --skip-corrupt to read past it)", err)
	}
	return err
}

func addCursorFlags(cmd *cobra.Command) {
	cmd.Flags().String("log", "", "Event log name")
	cmd.Flags().Uint64("from", 0, "Start at this position (inclusive)")
	cmd.Flags().String("group", "", "Resume from and commit to this consumer group")
	cmd.Flags().String("filter", "", "CEL filter over record fields")
	cmd.Flags().Bool("skip-corrupt", false, "Skip entries that fail to decode")
}

// newImportCommand constructs the `import` subcommand.
func newImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Append the merged records of log files to an event log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("log")
			batchSize, _ := cmd.Flags().GetInt("batch")
			if name == "" {
				return errMissingLog
			}
			if batchSize <= 0 {
				batchSize = 256
			}
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := rt.OpenLog(name)
			if err != nil {
				return err
			}
			m, err := rt.MergeFiles(args...)
			if err != nil {
				return err
			}
			defer m.Close()

			ctx := cmd.Context()
			batch := make([]record.Record, 0, batchSize)
			n := 0
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if _, err := l.Append(ctx, batch); err != nil {
					return err
				}
				n += len(batch)
				batch = batch[:0]
				return nil
			}
			for {
				rec, err := m.Read()
				if err != nil {
					return errors.Join(err, flush())
				}
				if rec == nil {
					break
				}
				batch = append(batch, *rec)
				if len(batch) == batchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			if err := flush(); err != nil {
				return err
			}
			rt.Logger().Info("import complete", logpkg.Str("log", name), logpkg.Int("records", n))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s (last seq %d)\n", n, name, l.LastSeq())
			return nil
		},
	}
	importCmd.Flags().String("log", "", "Event log name")
	importCmd.Flags().Int("batch", 256, "Records per Pebble batch")
	return importCmd
}

// newExportCommand constructs the `export` subcommand.
func newExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write event log records to a new log file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("log")
			out, _ := cmd.Flags().GetString("out")
			group, _ := cmd.Flags().GetString("group")
			expr, _ := cmd.Flags().GetString("filter")
			compression, _ := cmd.Flags().GetString("compression")
			if name == "" {
				return errMissingLog
			}
			if out == "" {
				return errors.New("--out is required")
			}
			comp, err := logfile.ParseCompression(compression)
			if err != nil {
				return err
			}
			f, err := filter.Compile(expr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := rt.OpenLog(name)
			if err != nil {
				return err
			}
			w, err := logfile.Create(out,
				logfile.WithWriterCompression(comp),
				logfile.WithWriterLogger(rt.Logger()),
				logfile.WithWriterMetrics(rt.Metrics()),
			)
			if err != nil {
				return err
			}
			cur := startCursor(cmd, l)
			src := filter.Wrap(cursorSource(cmd, rt, cur), f)
			for {
				rec, err := src.Read()
				if err != nil {
					return errors.Join(readErr(err), w.Close())
				}
				if rec == nil {
					break
				}
				if err := w.WriteRecord(*rec); err != nil {
					return errors.Join(err, w.Close())
				}
			}
			if err := w.Close(); err != nil {
				return err
			}
			if group != "" {
				if err := cur.Commit(group); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d records from %s to %s\n", w.Count(), name, out)
			return nil
		},
	}
	addCursorFlags(exportCmd)
	exportCmd.Flags().String("out", "", "Destination log file (must not exist)")
	exportCmd.Flags().String("compression", "auto", "Compression: auto|none|gzip")
	return exportCmd
}

// newTailCommand constructs the `tail` subcommand.
func newTailCommand() *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print records of an event log, optionally following new appends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("log")
			group, _ := cmd.Flags().GetString("group")
			expr, _ := cmd.Flags().GetString("filter")
			follow, _ := cmd.Flags().GetBool("follow")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			if name == "" {
				return errMissingLog
			}
			f, err := filter.Compile(expr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := rt.OpenLog(name)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cur := startCursor(cmd, l)
			src := filter.Wrap(cursorSource(cmd, rt, cur), f)
			p := newPrinter(cmd.OutOrStdout(), asJSON)
			for n := 0; limit <= 0 || n < limit; {
				rec, err := src.Read()
				if err != nil {
					return readErr(err)
				}
				if rec == nil {
					if !follow || !waitForAppend(ctx, l) {
						break
					}
					continue
				}
				if err := p.print(rec); err != nil {
					return err
				}
				n++
			}
			if group != "" {
				return cur.Commit(group)
			}
			return nil
		},
	}
	addCursorFlags(tailCmd)
	tailCmd.Flags().BoolP("follow", "f", false, "Keep waiting for new records")
	tailCmd.Flags().Int("limit", 0, "Stop after N records (0 = all)")
	tailCmd.Flags().Bool("json", false, "Print one JSON object per record")
	return tailCmd
}

// waitForAppend blocks until the log may have grown. It wakes at least every
// followPoll so an append racing the wait is never missed for long, and
// returns false once ctx is done.
func waitForAppend(ctx context.Context, l *eventlog.Log) bool {
	wctx, cancel := context.WithTimeout(ctx, followPoll)
	defer cancel()
	_ = l.WaitForAppendContext(wctx)
	return ctx.Err() == nil
}

// newTrimCommand constructs the `trim` subcommand.
func newTrimCommand() *cobra.Command {
	trimCmd := &cobra.Command{
		Use:   "trim",
		Short: "Delete the oldest records of an event log by age or total size",
		Long: "With --older-than or --max-bytes the limits are applied once, and " +
			"stored as the log's retention policy when --save is set. Without " +
			"them the stored policy is applied.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("log")
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
			save, _ := cmd.Flags().GetBool("save")
			batch, _ := cmd.Flags().GetInt("batch")
			throttle, _ := cmd.Flags().GetDuration("throttle")
			if name == "" {
				return errMissingLog
			}
			explicit := olderThan > 0 || maxBytes > 0
			if save && !explicit {
				return errors.New("--save needs --older-than or --max-bytes")
			}
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := rt.OpenLog(name)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if save {
				if _, err := rt.SetRetention(name, olderThan, maxBytes); err != nil {
					return err
				}
			}
			total := 0
			switch {
			case explicit:
				if olderThan > 0 {
					cutoff := time.Now().Add(-olderThan).UnixNano()
					n, _, err := l.TrimOlderThan(ctx, cutoff, batch, throttle)
					total += n
					if err != nil {
						return err
					}
				}
				if maxBytes > 0 {
					n, err := l.TrimToMaxBytes(ctx, maxBytes, batch, throttle)
					total += n
					if err != nil {
						return err
					}
				}
			default:
				if total, err = rt.ApplyRetention(ctx, name, batch, throttle); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trimmed %d records from %s\n", total, name)
			return nil
		},
	}
	trimCmd.Flags().String("log", "", "Event log name")
	trimCmd.Flags().Duration("older-than", 0, "Delete records with a timestamp older than this age")
	trimCmd.Flags().Int64("max-bytes", 0, "Delete oldest records until the log fits in this many bytes")
	trimCmd.Flags().Bool("save", false, "Store the limits as the log's retention policy")
	trimCmd.Flags().Int("batch", 1000, "Deletions per batch")
	trimCmd.Flags().Duration("throttle", 0, "Pause between batches")
	return trimCmd
}

// newLogsCommand constructs the `logs` subcommand.
func newLogsCommand() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "List event logs with their size and retention policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			metas, err := rt.Catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, m := range metas {
				l, err := rt.OpenLog(m.Name)
				if err != nil {
					return err
				}
				size, err := l.SizeBytes()
				if err != nil {
					return err
				}
				if asJSON {
					if err := enc.Encode(map[string]any{
						"name":        m.Name,
						"createdAtMs": m.CreatedAtMs,
						"lastSeq":     l.LastSeq(),
						"sizeBytes":   size,
						"retentionMs": m.RetentionMs,
						"maxBytes":    m.MaxBytes,
					}); err != nil {
						return err
					}
					continue
				}
				policy := "none"
				if m.HasPolicy() {
					policy = fmt.Sprintf("age=%s bytes=%d", m.Retention(), m.MaxBytes)
				}
				_, _ = fmt.Fprintf(out, "%s\tseq=%d\tsize=%d\tretention=%s\n", m.Name, l.LastSeq(), size, policy)
			}
			return nil
		},
	}
	logsCmd.Flags().Bool("json", false, "Print one JSON object per log")
	return logsCmd
}
