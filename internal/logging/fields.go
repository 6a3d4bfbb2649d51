package logging

// Standardized structured log field names. Components must use these
// constants instead of ad-hoc strings so log consumers can filter reliably.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldRole      = "role"
	FieldStep      = "step"
	FieldTrigger   = "trigger"
	FieldConnID    = "conn_id"
	FieldAudioID   = "audio_id"
	FieldRunID     = "run_id"
)
