package logcmd

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// newArchiveCommand constructs the `archive` subcommand.
func newArchiveCommand() *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Publish stdin lines through a queue into an archive file or event log",
		Long: "Each stdin line becomes one record on --topic. A background archiver " +
			"drains the queue and flushes every --flush-interval into a new file in " +
			"archive.dir, or into the event log named by --log.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			topic, _ := cmd.Flags().GetUint64("topic")
			logName, _ := cmd.Flags().GetString("log")
			dir, _ := cmd.Flags().GetString("dir")
			interval, _ := cmd.Flags().GetDuration("flush-interval")
			compression, _ := cmd.Flags().GetString("compression")

			rt, err := openRuntime(cmd, func(c *cfgpkg.Config) {
				if dir != "" {
					c.Archive.Dir = dir
				}
				if interval > 0 {
					c.Archive.FlushInterval = cfgpkg.Duration(interval)
				}
				if compression != "" {
					c.Archive.Compression = compression
				}
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			q := rt.NewQueue()
			defer q.Close()

			var stop func() error
			var dest string
			if logName != "" {
				a, err := rt.StartLogArchiver(q, logName)
				if err != nil {
					return err
				}
				stop, dest = a.Stop, "log "+logName
			} else {
				a, err := rt.StartFileArchiver(q, prefix)
				if err != nil {
					return err
				}
				stop, dest = a.Stop, a.Path
			}

			ctx := cmd.Context()
			w := q.Writer(topic)
			sc := bufio.NewScanner(cmd.InOrStdin())
			maxLine := rt.Config().Reader.MaxRecordBytes
			if maxLine <= 0 {
				maxLine = bufio.MaxScanTokenSize
			}
			sc.Buffer(make([]byte, 0, 64<<10), maxLine)
			n := 0
			for ctx.Err() == nil && sc.Scan() {
				if _, err := w.Write(time.Now().UnixNano(), sc.Bytes()); err != nil {
					return errors.Join(err, stop())
				}
				n++
			}
			if err := errors.Join(sc.Err(), stop()); err != nil {
				return err
			}
			rt.Logger().Info("archive complete", logpkg.Int("records", n), logpkg.Str("dest", dest))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "archived %d records to %s\n", n, dest)
			return nil
		},
	}
	archiveCmd.Flags().String("prefix", "archive", "Archive file name prefix")
	archiveCmd.Flags().Uint64("topic", 1, "Topic id stamped on every record")
	archiveCmd.Flags().String("log", "", "Archive into this event log instead of a file")
	archiveCmd.Flags().String("dir", "", "Archive directory (overrides archive.dir)")
	archiveCmd.Flags().Duration("flush-interval", 0, "Archiver flush period (overrides archive.flushInterval)")
	archiveCmd.Flags().String("compression", "", "Compression: auto|none|gzip (overrides archive.compression)")
	return archiveCmd
}
