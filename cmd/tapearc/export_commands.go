package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tapearc/internal/logging"
	"tapearc/internal/notifications"
	"tapearc/internal/store"
	"tapearc/internal/tapedrive"
	"tapearc/internal/tapeexport"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write cache files to LTO tape",
	}
	exportCmd.AddCommand(newExportAutoCommand(ctx))
	exportCmd.AddCommand(newExportRunCommand(ctx))
	return exportCmd
}

func newExportAutoCommand(cmdCtx *commandContext) *cobra.Command {
	var barcode string

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Select and transfer the oldest completed backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, cmdCtx, barcode, nil)
		},
	}
	cmd.Flags().StringVarP(&barcode, "barcode", "b", "", "Barcode of the loaded tape")
	_ = cmd.MarkFlagRequired("barcode")
	return cmd
}

func newExportRunCommand(cmdCtx *commandContext) *cobra.Command {
	var barcode string

	cmd := &cobra.Command{
		Use:   "run <item-id>...",
		Short: "Transfer an explicit list of cache items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}
			return runExport(cmd, cmdCtx, barcode, ids)
		},
	}
	cmd.Flags().StringVarP(&barcode, "barcode", "b", "", "Barcode of the loaded tape")
	_ = cmd.MarkFlagRequired("barcode")
	return cmd
}

func runExport(cmd *cobra.Command, cmdCtx *commandContext, barcode string, ids []int64) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Export.LTFSMount == "" {
		return errors.New("export.ltfs_mount is not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, view, cleanup, err := cmdCtx.openCacheView(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	deps := tapeexport.Deps{
		Cache:  view,
		DB:     db,
		Drive:  tapedrive.NewLTFSDrive(cfg.Export.LTFSMount, logger),
		Logger: logger,
	}

	var session *tapeexport.Session
	if ids == nil {
		session = tapeexport.NewAuto(cfg, deps, barcode)
	} else {
		session = tapeexport.NewManual(cfg, deps, barcode, ids)
	}
	if err := session.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Export session %d started for tape %s\n", session.SessionID(), barcode)
	return watchExport(ctx, out, session, notifications.NewService(cfg), barcode)
}

// watchExport prints progress until the session reaches a terminal state.
// An interrupt aborts the session as user-initiated and waits for the
// state machine to wind down.
func watchExport(ctx context.Context, out io.Writer, session *tapeexport.Session, notifier notifications.Service, barcode string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastState tapeexport.State
	var lastMessage string
	seen := make(map[int]store.TransferStatus)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Interrupted; aborting export")
			session.Abort(true, "interrupted by operator")
			<-session.Done()
		case <-session.Done():
		case <-ticker.C:
			snap := session.Status()
			if snap.State != lastState || snap.Message != lastMessage {
				line := snap.State.String()
				if snap.Message != "" {
					line += ": " + snap.Message
				}
				fmt.Fprintln(out, line)
				lastState, lastMessage = snap.State, snap.Message
			}
			for i, file := range snap.Files {
				if seen[i] != file.Status {
					seen[i] = file.Status
					if file.Status != store.TransferNotStarted {
						fmt.Fprintf(out, "  %s: %s\n", file.TapeFilename, file.Status)
					}
				}
			}
			continue
		}

		snap := session.Status()
		switch snap.State {
		case tapeexport.StateCompleted:
			_ = notifier.Publish(context.Background(), notifications.EventExportCompleted, notifications.Payload{
				"barcode": barcode,
				"files":   strconv.Itoa(len(snap.Files)),
			})
			fmt.Fprintf(out, "Export completed: %d files on tape\n", len(snap.Files))
			return nil
		case tapeexport.StateAborted:
			_ = notifier.Publish(context.Background(), notifications.EventExportAborted, notifications.Payload{
				"barcode": barcode,
				"reason":  snap.Message,
			})
			return fmt.Errorf("export aborted: %s", snap.Message)
		default:
			_ = notifier.Publish(context.Background(), notifications.EventExportAborted, notifications.Payload{
				"barcode": barcode,
				"reason":  snap.Message,
			})
			return fmt.Errorf("export failed: %s", snap.Message)
		}
	}
}
