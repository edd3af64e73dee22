package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tapearc/internal/cache"
	"tapearc/internal/mxf"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the recorder's disk cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cache contents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, view, cleanup, err := cmdCtx.openCacheView(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			contents := view.GetContents()
			rows := make([][]string, 0, len(contents))
			for _, entry := range contents {
				rows = append(rows, []string{
					strconv.FormatInt(entry.DestinationID, 10),
					entry.Filename,
					formatSize(entry.Size),
					formatDuration(entry.Duration),
					entry.SessionCreatedAt.Local().Format("2006-01-02 15:04"),
					entryStatus(entry),
					entry.Source.SpoolNumber,
					strconv.Itoa(entry.Source.ItemNumber),
				})
			}

			out := cmd.OutOrStdout()
			writeRows(out,
				[]string{"ID", "FILENAME", "SIZE", "DURATION", "RECORDED", "STATUS", "SPOOL", "ITEM"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			)

			status := view.Status()
			line := fmt.Sprintf("%d items, %s used", status.NumItems, humanize.IBytes(uint64(status.TotalSize)))
			if free, err := view.DiskSpace(); err == nil {
				line += fmt.Sprintf(", %s free", humanize.IBytes(free))
			}
			fmt.Fprintln(out, line)
			return nil
		},
	}
}

func entryStatus(entry cache.ContentEntry) string {
	if entry.Creating {
		return "creating"
	}
	return string(entry.SessionStatus)
}

func formatSize(size int64) string {
	if size < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

func formatDuration(frames int64) string {
	if frames < 0 {
		return "-"
	}
	return mxf.TimecodeFromFrames(frames).String()
}
