package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/archive"
	"github.com/alfredjeanlab/notify/internal/client"
	"github.com/alfredjeanlab/notify/internal/config"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored messages as JSONL",
	Long: `Export stored messages in id order as JSONL, the same format the
archive scheduler uploads. Reads the server configuration to reach the store.`,
	GroupID:           "system",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt("limit")
		msgs, err := archive.Collect(cmd.Context(), st, after, limit)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		res, err := archive.ExportJSONL(w, msgs)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d message(s), ids %d..%d\n", res.Count, res.FirstID, res.LastID)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Show server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := notifyClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(h)
			return nil
		}
		fmt.Printf("status: %s\nonline: %d\n", h.Status, h.Online)
		for _, k := range []string{"accepted", "persisted", "pushed", "shed", "failed", "invalid"} {
			fmt.Printf("%-10s %d\n", k+":", h.Dispatch[k])
		}
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:     "presence",
	Short:   "List online users",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("service-token")
		if token == "" {
			return fmt.Errorf("--service-token (or NOTIFY_SERVICE_TOKEN) is required")
		}
		entries, err := client.NewHTTPClient(httpURL, token).Presence(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(entries)
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-12d %-24s %s\n", e.UserID, e.ConnID, e.ConnectedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(os.Stderr, "%d online\n", len(entries))
		return nil
	},
}

func init() {
	presenceCmd.Flags().String("service-token", os.Getenv("NOTIFY_SERVICE_TOKEN"), "server service token")
	exportCmd.Flags().Int64("after", 0, "export messages with id greater than this")
	exportCmd.Flags().Int("limit", 0, "maximum messages to export (0 = all)")
	exportCmd.Flags().String("out", "", "write to file instead of stdout")
}
