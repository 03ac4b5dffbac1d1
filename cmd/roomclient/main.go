// Package main is the entry point for the roomclient binary: a small
// interactive demo that connects to one room, prints connection/others/
// storage-status transitions as they happen, and exposes presence,
// storage, and undo/redo as line commands read from stdin.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "roomclient",
		Short: "roomclient — connect to a room and drive it from the shell",
		Long: `roomclient opens one room's websocket connection, streams connection
state / presence / storage-status changes to stdout, and lets the caller
set presence, run storage ops, and undo/redo — all against the real
client-side room state machine, not a mock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.server, "server", envOrDefault("ROOMCLIENT_SERVER", "wss://localhost:8080"), "room server websocket origin")
	root.PersistentFlags().StringVar(&cfg.room, "room", envOrDefault("ROOMCLIENT_ROOM", ""), "room id to connect to")
	root.PersistentFlags().StringVar(&cfg.authURL, "auth-url", envOrDefault("ROOMCLIENT_AUTH_URL", ""), "auth endpoint URL (required; private unless --public-key is set)")
	root.PersistentFlags().StringVar(&cfg.publicKey, "public-key", envOrDefault("ROOMCLIENT_PUBLIC_KEY", ""), "public API key sent to --auth-url")
	root.PersistentFlags().StringVar(&cfg.version, "client-version", "1", "client version reported at connect")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ROOMCLIENT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the roomclient version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

var version = "dev"

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type config struct {
	server    string
	room      string
	authURL   string
	publicKey string
	version   string
	logLevel  string
}
