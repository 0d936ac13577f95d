package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a receiver bearer token",
	Long: `Mint a signed bearer token for a receiver, for local testing.

The token is signed with NOTIFY_JWT_SECRET (or --secret), the same
secret the server verifies with.`,
	GroupID: "system",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			return fmt.Errorf("--secret (or NOTIFY_JWT_SECRET) is required")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := auth.Issue(secret, userID, ttl)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]any{"userId": userID, "token": token})
			return nil
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", os.Getenv("NOTIFY_JWT_SECRET"), "signing secret")
	tokenCmd.Flags().Duration("ttl", auth.DefaultTTL, "token lifetime")
}
