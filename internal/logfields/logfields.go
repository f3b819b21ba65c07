package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyWorkID     = "work_id"
	KeyMarker     = "marker"
	KeyPassID     = "pass_id"
	KeyRepo       = "repository"
	KeyPRNumber   = "pr_number"
	KeyChatID     = "chat_id"
	KeySnapshot   = "snapshot"
	KeyRole       = "role"
	KeyOutcome    = "outcome"
	KeyCommand    = "command"
	KeyPath       = "path"
	KeySink       = "sink"
	KeyProvider   = "provider"
	KeyModel      = "model"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyScheduleID = "schedule_id"
	KeySchedule   = "schedule_name"
	KeyCount      = "count"
	KeyAttempt    = "attempt"
	KeyStatus     = "status"
	KeyMethod     = "method"
	KeyURL        = "url"
	KeyError      = "error"
	KeyCategory   = "error_category"
	KeyExternal   = "external"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func WorkID(id string) slog.Attr       { return slog.String(KeyWorkID, id) }
func Marker(m string) slog.Attr        { return slog.String(KeyMarker, m) }
func PassID(id string) slog.Attr       { return slog.String(KeyPassID, id) }
func Repository(r string) slog.Attr    { return slog.String(KeyRepo, r) }
func PRNumber(n int) slog.Attr         { return slog.Int(KeyPRNumber, n) }
func ChatID(id string) slog.Attr       { return slog.String(KeyChatID, id) }
func Snapshot(name string) slog.Attr   { return slog.String(KeySnapshot, name) }
func Role(r string) slog.Attr          { return slog.String(KeyRole, r) }
func Outcome(o string) slog.Attr       { return slog.String(KeyOutcome, o) }
func Command(c string) slog.Attr       { return slog.String(KeyCommand, c) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Sink(s string) slog.Attr          { return slog.String(KeySink, s) }
func Provider(p string) slog.Attr      { return slog.String(KeyProvider, p) }
func Model(m string) slog.Attr         { return slog.String(KeyModel, m) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr   { return slog.String(KeyScheduleID, id) }
func ScheduleName(n string) slog.Attr  { return slog.String(KeySchedule, n) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Category(c string) slog.Attr      { return slog.String(KeyCategory, c) }
func External(b bool) slog.Attr        { return slog.Bool(KeyExternal, b) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
