package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/client"
	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream live notifications as they arrive",
	GroupID: "inbox",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := client.NewWatcher(httpURL, userToken)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintln(os.Stderr, ui.RenderMuted("watching for notifications, Ctrl-C to stop"))
		return w.Watch(ctx, func(v model.MessageView) {
			if jsonOutput {
				printJSON(v)
				return
			}
			fmt.Println(ui.FormatMessage(v))
		})
	},
}
