package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/agentsmith/internal/client"
	"github.com/alfredjeanlab/agentsmith/internal/ui"
)

var (
	serverURL  string
	token      string
	userID     string
	sessionID  string
	jsonOutput bool

	apiClient client.Client
)

func defaultURL() string {
	if s := os.Getenv("AGENTSMITH_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("AGENTSMITH_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultUser() string {
	if s := os.Getenv("AGENTSMITH_USER"); s != "" {
		return s
	}
	if u := activeRemote().User; u != "" {
		return u
	}
	if s := os.Getenv("USER"); s != "" {
		return s
	}
	return "unknown"
}

// noClient overrides PersistentPreRunE for commands that never talk to the API.
func noClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:          "agentsmith <command>",
	Short:        "CLI client for the agentsmith room event service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.NewHTTPClient(serverURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultURL(), "server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "API token")
	rootCmd.PersistentFlags().StringVar(&userID, "user", defaultUser(), "sender user id")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", os.Getenv("AGENTSMITH_SESSION"), "sender session id")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "rooms", Title: "Rooms:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.OnInitialize(func() {
		if jsonOutput || !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
	})
	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(printHelp)

	// Events
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(tailCmd)

	// Rooms
	rootCmd.AddCommand(roomCmd)
	rootCmd.AddCommand(presenceCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
