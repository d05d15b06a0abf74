package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alfredjeanlab/agentsmith/internal/client"
	"github.com/alfredjeanlab/agentsmith/internal/events"
	"github.com/alfredjeanlab/agentsmith/internal/model"
)

var emitCmd = &cobra.Command{
	Use:   "emit <room>",
	Short: "Emit an event into a room and print any waiting messages",
	Long: `Emit an event into a room.

The payload is taken from --payload, or read from stdin when --payload is
"-" or stdin is not a terminal. Without either, the payload is {}.

Targeted events (--target-user) are delivered once to that participant's
next emit instead of being broadcast.`,
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		format, _ := cmd.Flags().GetString("format")
		want, _ := cmd.Flags().GetString("want")
		targetUser, _ := cmd.Flags().GetString("target-user")
		targetSession, _ := cmd.Flags().GetString("target-session")
		payloadFlag, _ := cmd.Flags().GetString("payload")

		payload, err := readPayload(payloadFlag, os.Stdin)
		if err != nil {
			return err
		}
		in, err := buildEventInput(args[0], typ, format, payload, targetUser, targetSession)
		if err != nil {
			return err
		}

		res, err := apiClient.Emit(context.Background(), in, want)
		if err != nil {
			return fmt.Errorf("emitting event: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), res)
		} else {
			printEmitResult(cmd.OutOrStdout(), res)
		}
		return nil
	},
}

// readPayload resolves the event payload from the flag value or stdin.
func readPayload(flag string, stdin *os.File) (json.RawMessage, error) {
	if flag != "" && flag != "-" {
		return json.RawMessage(flag), nil
	}
	if flag == "" && (stdin == nil || term.IsTerminal(int(stdin.Fd()))) {
		return json.RawMessage(`{}`), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("reading payload from stdin: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(data), nil
}

func buildEventInput(roomID, typ, format string, payload json.RawMessage, targetUser, targetSession string) (*model.EventInput, error) {
	if typ == "" {
		return nil, errors.New("--type is required")
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	if targetSession != "" && targetUser == "" {
		return nil, errors.New("--target-session requires --target-user")
	}
	in := &model.EventInput{
		RoomID:  roomID,
		Type:    typ,
		Format:  format,
		Sender:  model.Participant{UserID: userID, SessionID: sessionID},
		Payload: payload,
	}
	if targetUser != "" {
		in.Target = &model.Participant{UserID: targetUser, SessionID: targetSession}
	}
	return in, nil
}

var pollCmd = &cobra.Command{
	Use:     "poll <room>",
	Short:   "Fetch broadcast events newer than a timestamp",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		res, err := apiClient.Poll(context.Background(), args[0], since, limit, format)
		if err != nil {
			return fmt.Errorf("polling events: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), res)
		} else {
			printPollResult(cmd.OutOrStdout(), res)
		}
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:     "stream <room>",
	Short:   "Follow a room's event stream (catch-up then live)",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		format, _ := cmd.Flags().GetString("format")
		reconnect, _ := cmd.Flags().GetBool("reconnect")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		req := &client.StreamRequest{RoomID: args[0], Since: since, Format: format, Reconnect: reconnect}
		return apiClient.Stream(ctx, req, func(evt *model.Event) error {
			if jsonOutput {
				data, err := json.Marshal(evt)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			printEventLine(out, evt)
			return nil
		})
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail [<room>]",
	Short: "Tail mirrored room events from NATS",
	Long: `Tail broadcast events mirrored to NATS by the server.

Without a room, events from every room are shown. The NATS URL comes from
--nats, AGENTSMITH_NATS_URL, or the active remote.`,
	GroupID:           "events",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("AGENTSMITH_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemote().NATSURL
		}
		if natsURL == "" {
			return errors.New("no NATS URL; pass --nats or set one on the remote")
		}
		room := ""
		if len(args) == 1 {
			room = args[0]
		}

		sub, err := events.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.SubscribeRoom(room)
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-ch:
				if !ok {
					return nil
				}
				if jsonOutput {
					data, _ := json.Marshal(evt)
					fmt.Fprintln(out, string(data))
					continue
				}
				fmt.Fprintf(out, "[%s] ", evt.RoomID)
				printEventLine(out, evt)
			}
		}
	},
}

func init() {
	emitCmd.Flags().StringP("type", "t", "", "event type (required)")
	emitCmd.Flags().String("format", "", "payload format of the event")
	emitCmd.Flags().String("want", "", "format to receive waiting messages in")
	emitCmd.Flags().String("target-user", "", "deliver only to this user")
	emitCmd.Flags().String("target-session", "", "deliver only to this session of --target-user")
	emitCmd.Flags().StringP("payload", "p", "", `JSON payload ("-" reads stdin)`)

	pollCmd.Flags().Int64("since", 0, "return events created after this Unix ms timestamp")
	pollCmd.Flags().Int("limit", 0, "maximum events to return (server default when 0)")
	pollCmd.Flags().String("format", "", "transform payloads to this format")

	streamCmd.Flags().Int64("since", 0, "replay events created after this Unix ms timestamp")
	streamCmd.Flags().String("format", "", "transform payloads to this format")
	streamCmd.Flags().Bool("reconnect", false, "reconnect and resume after disconnects")

	tailCmd.Flags().String("nats", "", "NATS server URL")
}
