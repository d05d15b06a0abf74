package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/ui"
)

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func participantString(p *model.Participant) string {
	if p == nil {
		return ""
	}
	if p.SessionID == "" {
		return p.UserID
	}
	return p.UserID + "/" + p.SessionID
}

// printEventLine writes one event as a single line, for poll and stream.
func printEventLine(w io.Writer, evt *model.Event) {
	target := ""
	if evt.Target != nil {
		target = " -> " + participantString(evt.Target)
	}
	fmt.Fprintf(w, "%s %s %s%s %s\n",
		ui.RenderMuted(formatMillis(evt.CreatedAt)),
		ui.RenderAccent(evt.Type),
		participantString(&evt.Sender),
		target,
		compactPayload(evt.Payload, ui.TerminalWidth(os.Stdout, 160)-60),
	)
}

// compactPayload truncates a payload to at most limit bytes (never below 40).
func compactPayload(p json.RawMessage, limit int) string {
	if limit < 40 {
		limit = 40
	}
	s := string(p)
	if len(s) > limit {
		s = s[:limit-3] + "..."
	}
	return s
}

func printEmitResult(w io.Writer, res *model.EmitResult) {
	fmt.Fprintf(w, "ID:          %s\n", res.ID)
	fmt.Fprintf(w, "Room:        %s\n", res.RoomID)
	fmt.Fprintf(w, "Created At:  %s\n", formatMillis(res.CreatedAt))
	fmt.Fprintf(w, "Expires At:  %s\n", formatMillis(res.ExpiresAt))
	if len(res.Messages) == 0 {
		return
	}
	fmt.Fprintf(w, "Messages:    %d\n", len(res.Messages))
	for _, m := range res.Messages {
		fmt.Fprintf(w, "  %s\n", string(m))
	}
}

func printPollResult(w io.Writer, res *model.PollResult) {
	for _, evt := range res.Events {
		printEventLine(w, evt)
	}
	fmt.Fprintf(w, "\n%d events (latest_ts %d)\n", len(res.Events), res.LatestTS)
}

func printPresence(w io.Writer, sessions []model.PresenceSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no active sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSESSION\tSIGNAL\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.DisplayName, s.SessionID, ui.RenderSignal(s.Signal), formatMillis(s.UpdatedAt))
	}
	tw.Flush()
}

func printRoomList(w io.Writer, rooms []*model.RoomSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMEMBERS\tCREATED BY\tCREATED")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.ID, r.MemberCount, r.CreatedBy, formatMillis(r.CreatedAt))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d rooms\n", len(rooms))
}

func printRoomDetail(w io.Writer, room *model.RoomDetail) {
	fmt.Fprintf(w, "ID:          %s\n", room.ID)
	fmt.Fprintf(w, "Created By:  %s\n", room.CreatedBy)
	fmt.Fprintf(w, "Created At:  %s\n", formatMillis(room.CreatedAt))
	fmt.Fprintf(w, "Members:     %d\n", len(room.Members))
	for _, m := range room.Members {
		fmt.Fprintf(w, "  %s (joined %s)\n", m.UserID, formatMillis(m.JoinedAt))
	}
}
