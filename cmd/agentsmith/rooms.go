package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var roomCmd = &cobra.Command{
	Use:     "room",
	Short:   "Create and inspect rooms",
	GroupID: "rooms",
}

var roomCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a room and join it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := apiClient.CreateRoom(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("creating room: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), room)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %q created\n", room.ID)
		return nil
	},
}

var roomListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, err := apiClient.ListRooms(context.Background())
		if err != nil {
			return fmt.Errorf("listing rooms: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), rooms)
		} else {
			printRoomList(cmd.OutOrStdout(), rooms)
		}
		return nil
	},
}

var roomShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a room and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := apiClient.GetRoom(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting room: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), room)
		} else {
			printRoomDetail(cmd.OutOrStdout(), room)
		}
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:     "presence <room>",
	Short:   "Show live sessions in a room and their latest signal",
	GroupID: "rooms",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := apiClient.Presence(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting presence: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), sessions)
		} else {
			printPresence(cmd.OutOrStdout(), sessions)
		}
		return nil
	},
}

func init() {
	roomCmd.AddCommand(roomCreateCmd)
	roomCmd.AddCommand(roomListCmd)
	roomCmd.AddCommand(roomShowCmd)
}
