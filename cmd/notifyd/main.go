// Command notifyd runs the notification service and offers client commands
// for inspecting a receiver's inbox.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/client"
	"github.com/alfredjeanlab/notify/internal/ui"
)

var (
	httpURL    string
	userToken  string
	jsonOutput bool
	noColor    bool

	notifyClient *client.HTTPClient
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var rootCmd = &cobra.Command{
	Use:           "notifyd <command>",
	Short:         "Notification delivery service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetColor(!noColor && ui.ShouldUseColor())
		notifyClient = client.NewHTTPClient(httpURL, userToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if notifyClient != nil {
			notifyClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOrDefault("NOTIFY_HTTP_URL", "http://localhost:8080"), "notifyd server URL")
	rootCmd.PersistentFlags().StringVar(&userToken, "token", os.Getenv("NOTIFY_TOKEN"), "receiver bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "inbox", Title: "Inbox:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Inbox
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(deleteCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(presenceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
