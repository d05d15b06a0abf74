package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		senderSession sql.NullString
		targetUser    sql.NullString
		targetSession sql.NullString
		payload       []byte
	)

	err := row.Scan(
		&e.ID,
		&e.RoomID,
		&e.Type,
		&e.Format,
		&e.Sender.UserID,
		&senderSession,
		&targetUser,
		&targetSession,
		&payload,
		&e.TTLSeconds,
		&e.CreatedAt,
		&e.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	e.Sender.SessionID = senderSession.String
	if targetUser.Valid {
		e.Target = &model.Participant{UserID: targetUser.String, SessionID: targetSession.String}
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	} else {
		e.Payload = json.RawMessage("null")
	}
	return &e, nil
}

// scanEvents scans every row and closes nothing; callers own rows.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// nullString converts an empty string to a NULL value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
