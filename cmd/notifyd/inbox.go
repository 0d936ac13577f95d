package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/client"
	"github.com/alfredjeanlab/notify/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List messages in your inbox",
	GroupID: "inbox",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.ListMessagesRequest{}
		req.Type, _ = cmd.Flags().GetString("type")
		req.Page, _ = cmd.Flags().GetInt("page")
		req.PageSize, _ = cmd.Flags().GetInt("page-size")
		req.Sort, _ = cmd.Flags().GetString("sort")
		if unread, _ := cmd.Flags().GetBool("unread"); unread {
			f := false
			req.IsRead = &f
		}
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			req.StartTime = time.Now().Add(-since).UTC().Truncate(time.Second)
		}

		page, err := notifyClient.ListMessages(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(page)
			return nil
		}
		for _, m := range page.Items {
			fmt.Println(ui.FormatMessage(m))
		}
		fmt.Println(ui.RenderMuted(fmt.Sprintf("page %d of %d, %d total", page.Page, page.TotalPages, page.Total)))
		return nil
	},
}

var unreadCmd = &cobra.Command{
	Use:     "unread",
	Short:   "Show unread counts by type",
	GroupID: "inbox",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := notifyClient.UnreadCountByType(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(counts)
			return nil
		}
		fmt.Println(ui.FormatCounts(counts))
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:     "read [message-id...]",
	Short:   "Mark messages as read",
	GroupID: "inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return fmt.Errorf("pass message ids or --all")
		}

		var n int
		var err error
		switch {
		case all:
			n, err = notifyClient.MarkAllAsRead(cmd.Context())
		case len(args) == 1:
			var id int64
			if id, err = parseID(args[0]); err != nil {
				return err
			}
			err = notifyClient.MarkAsRead(cmd.Context(), id)
			n = -1
		default:
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			n, err = notifyClient.MarkAsReadBatch(cmd.Context(), ids)
		}
		if err != nil {
			return err
		}
		if n >= 0 {
			fmt.Printf("Marked %d message(s) read\n", n)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <message-id>",
	Short:   "Delete a message",
	GroupID: "inbox",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return notifyClient.DeleteMessage(cmd.Context(), id)
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}

func init() {
	listCmd.Flags().String("type", "", "filter by type (LIKE, COMMENT, SYSTEM)")
	listCmd.Flags().Bool("unread", false, "only unread messages")
	listCmd.Flags().Duration("since", 0, "only messages newer than this (e.g. 24h)")
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("page-size", 20, "messages per page (max 100)")
	listCmd.Flags().String("sort", "", "sort order: created_at or -created_at (default newest first)")

	readCmd.Flags().Bool("all", false, "mark every message read")
}
