package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// JobID records the job identifier under the key "job_id".
func JobID(id string) slog.Attr {
	return slog.String("job_id", id)
}

// Topic records the job topic under the key "topic".
func Topic(name string) slog.Attr {
	return slog.String("topic", name)
}

// Attempt records the attempt counter as "attempt" and "max_attempts" in a group.
func Attempt(made, limit int) slog.Attr {
	return slog.Group("attempt",
		slog.Int("made", made),
		slog.Int("max", limit),
	)
}

// ScheduleKey records a repeatable schedule key under the key "schedule_key".
func ScheduleKey(key string) slog.Attr {
	return slog.String("schedule_key", key)
}

// Room records the fan-out room name under the key "room".
func Room(name string) slog.Attr {
	return slog.String("room", name)
}

// ConnID records the realtime connection identifier under the key "conn_id".
func ConnID(id string) slog.Attr {
	return slog.String("conn_id", id)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Count records a generic counter under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
