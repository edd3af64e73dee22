package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tapearc/internal/notifications"
)

func newNotifyCommand(cmdCtx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification helpers",
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notify.NtfyTopic == "" {
				return errors.New("notify.ntfy_topic is not configured")
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}

	notifyCmd.AddCommand(testCmd)
	return notifyCmd
}
