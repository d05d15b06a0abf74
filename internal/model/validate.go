package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

var roomIDPattern = regexp.MustCompile(`^[a-z0-9-]{2,48}$`)

// ValidateRoomID checks that id is a well-formed room slug.
func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return &ValidationError{Errors: []FieldError{{
			Field:   "room_id",
			Message: fmt.Sprintf("%q must match %s", id, roomIDPattern.String()),
		}}}
	}
	return nil
}

// ValidateEventInput checks an emit request addressed to roomID.
// It returns a *ValidationError if any rules fail, or nil if the input is valid.
func ValidateEventInput(roomID string, in *EventInput) error {
	var ve ValidationError

	if err := ValidateRoomID(roomID); err != nil {
		return err
	}

	switch {
	case in.RoomID == "":
		ve.add("room_id", "is required")
	case in.RoomID != roomID:
		ve.add("room_id", fmt.Sprintf("%q does not match room %q", in.RoomID, roomID))
	}
	if strings.TrimSpace(in.Type) == "" {
		ve.add("type", "is required")
	}
	if strings.TrimSpace(in.Format) == "" {
		ve.add("format", "is required")
	}
	if strings.TrimSpace(in.Sender.UserID) == "" {
		ve.add("sender.user_id", "is required")
	}
	if in.Target != nil && strings.TrimSpace(in.Target.UserID) == "" {
		ve.add("target.user_id", "is required when target is set")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
