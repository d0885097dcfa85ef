package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wellcheck/internal/inbox"
	"wellcheck/internal/jobs"
	wellchecksdk "wellcheck/sdk/go"
)

// Commands in this file talk to a running `wc serve` since job queues and
// their failed sets live in the server process.

func remoteClient() *wellchecksdk.Client {
	return wellchecksdk.New(viper.GetString("server"), viper.GetString("actor-id"))
}

func jobsCmd() *cobra.Command {
	jc := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job queues on a running server",
	}
	jc.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Pending, running and failed counts per queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := remoteClient().JobStats(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(stats)
			}
			tw := newTable("Queue", "Pending", "Running", "Failed")
			for _, s := range stats {
				tw.AppendRow(table.Row{s.Queue, s.Pending, s.Running, s.Failed})
			}
			tw.Render()
			return nil
		},
	})
	var queue string
	failed := &cobra.Command{
		Use:   "failed",
		Short: "Jobs that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := remoteClient().FailedJobs(cmd.Context(), queue)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable("Job", "Type", "Attempts", "Failed at", "Error")
			for _, f := range items {
				tw.AppendRow(table.Row{f.Job.ID, f.Job.Type, f.Job.Attempts, f.FailedAt.Format(time.RFC3339), f.Error})
			}
			tw.Render()
			return nil
		},
	}
	failed.Flags().StringVar(&queue, "queue", jobs.QueueNotifications, "queue name")
	jc.AddCommand(failed)
	return jc
}

func inboxCmd() *cobra.Command {
	ic := &cobra.Command{
		Use:   "inbox",
		Short: "In-app notifications on a running server",
	}
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInbox(cmd.Context(), func(ctx context.Context, box *inbox.Inbox) error {
				items := box.Items()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Kind", "Employee", "Title", "Created", "Read")
				for _, n := range items {
					if unread && n.Read() {
						continue
					}
					read := ""
					if n.Read() {
						read = "yes"
					}
					tw.AppendRow(table.Row{n.ID, n.Kind, n.EmployeeID, n.Title, n.CreatedAt.Format(time.RFC3339), read})
				}
				tw.Render()
				fmt.Printf("%d unread\n", box.Unread())
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	ic.AddCommand(list)
	ic.AddCommand(&cobra.Command{
		Use:   "read <notification-id>...",
		Short: "Mark notifications read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInbox(cmd.Context(), func(ctx context.Context, box *inbox.Inbox) error {
				for _, id := range args {
					if err := box.MarkRead(ctx, id); err != nil {
						return err
					}
				}
				fmt.Printf("%d unread\n", box.Unread())
				return nil
			})
		},
	})
	ic.AddCommand(&cobra.Command{
		Use:   "delete <notification-id>...",
		Short: "Delete notifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInbox(cmd.Context(), func(ctx context.Context, box *inbox.Inbox) error {
				for _, id := range args {
					if err := box.Delete(ctx, id); err != nil {
						return err
					}
				}
				fmt.Printf("%d notifications left\n", len(box.Items()))
				return nil
			})
		},
	})
	return ic
}

func withInbox(ctx context.Context, fn func(context.Context, *inbox.Inbox) error) error {
	box := inbox.New(remoteClient())
	if err := box.Sync(ctx); err != nil {
		return err
	}
	return fn(ctx, box)
}
