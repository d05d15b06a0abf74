package model

// DefaultTTLSeconds applies to event types missing from the TTL table.
const DefaultTTLSeconds = 300

// eventTTLs maps event types to their time-to-live in seconds.
var eventTTLs = map[string]int{
	"hook.SessionStart":     86400,
	"hook.SessionEnd":       300,
	"hook.UserPromptSubmit": 600,
	"hook.PreToolUse":       300,
	"hook.PostToolUse":      300,
	"hook.Stop":             300,
	"hook.Notification":     120,
	"interaction":           120,
	"session.signal":        600,
	"session.started":       86400,
	"session.ended":         300,
}

// TTLFor returns the time-to-live in seconds for the given event type.
func TTLFor(eventType string) int {
	if ttl, ok := eventTTLs[eventType]; ok {
		return ttl
	}
	return DefaultTTLSeconds
}

// ExpiresAt computes the expiry of an event created at createdAt (Unix ms).
func ExpiresAt(createdAt int64, ttlSeconds int) int64 {
	return createdAt + int64(ttlSeconds)*1000
}
