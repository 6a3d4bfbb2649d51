// Package api defines the wire-level event envelope and payload types
// shared by the WebSocket, HTTP, and IPC surfaces.
package api

// Event is the JSON envelope every outbound broadcast uses.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event types broadcast to connected clients.
const (
	EventStepAdvanced    = "stepAdvanced"
	EventExpectedInput   = "expectedInput"
	EventPlayAudio       = "playAudio"
	EventShowImage       = "showImage"
	EventReplaceImage    = "replaceImage"
	EventHideImages      = "hideImages"
	EventUpdateGauges    = "updateGauges"
	EventLockdown        = "lockdown"
	EventSubtitle        = "subtitle"
	EventPlayVideo       = "playVideo"
	EventMissionComplete = "missionComplete"
	EventMissionReset    = "missionReset"
	EventRoleUpdate      = "roleUpdate"
	EventParticipants    = "participants"
	EventVoiceAccepted   = "voiceAccepted"
	EventTerminalOutput  = "terminalOutput"
	EventAudioEnded      = "audioEnded"
	EventSnapshot        = "snapshot"
	EventRoleGranted     = "roleGranted"
	EventRoleDenied      = "roleDenied"
)

// StepAdvancedPayload announces the shared step pointer moving.
type StepAdvancedPayload struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// ExpectedInputPayload tells terminals what input unlocks the current
// step. A nil payload on the wire means nothing is expected.
type ExpectedInputPayload struct {
	Role string `json:"role"`
	// Kind is "voice" or "command".
	Kind string `json:"kind"`
	Text string `json:"text"`
	Step int    `json:"step"`
}

// PlayAudioPayload cues an audio file with its display dialogue.
type PlayAudioPayload struct {
	Audio    string `json:"audio"`
	Dialogue string `json:"dialogue,omitempty"`
}

// ImagePayload shows or replaces the board image.
type ImagePayload struct {
	Image string `json:"image"`
}

// GaugesPayload carries current gauge readings.
type GaugesPayload struct {
	Gauges map[string]int `json:"gauges"`
}

// LockdownPayload carries the lockdown flag.
type LockdownPayload struct {
	Active bool `json:"active"`
}

// SubtitlePayload shows a subtitle overlay.
type SubtitlePayload struct {
	Text string `json:"text"`
}

// VideoPayload cues a video file.
type VideoPayload struct {
	Video string `json:"video"`
}

// VoiceAcceptedPayload echoes the canonical scripted line, never the raw
// transcript, so observers see the script rather than recognition noise.
type VoiceAcceptedPayload struct {
	Role string `json:"role"`
	Line string `json:"line"`
}

// TerminalOutputPayload echoes a typed command to every terminal.
type TerminalOutputPayload struct {
	Role    string `json:"role"`
	Command string `json:"command"`
}

// AudioEndedPayload relays an audio-completion report to all clients.
type AudioEndedPayload struct {
	Audio string `json:"audio"`
}

// RolePayload names a role in grant/deny responses.
type RolePayload struct {
	Role string `json:"role"`
}

// MissionStatus is the queryable state snapshot used by HTTP, IPC, and
// the connect-time sync event.
type MissionStatus struct {
	Script      string                `json:"script"`
	State       string                `json:"state"`
	Step        int                   `json:"step"`
	Total       int                   `json:"total"`
	Gauges      map[string]int        `json:"gauges"`
	Lockdown    bool                  `json:"lockdown"`
	Image       string                `json:"image,omitempty"`
	PendingWait string                `json:"pending_wait,omitempty"`
	Expected    *ExpectedInputPayload `json:"expected,omitempty"`
}

// DaemonStatus is the process-level status for CLI and HTTP.
type DaemonStatus struct {
	Version      string        `json:"version"`
	PID          int           `json:"pid"`
	StartedAt    string        `json:"started_at"`
	Connections  int           `json:"connections"`
	Mission      MissionStatus `json:"mission"`
	Participants []any         `json:"participants,omitempty"`
}

// JournalEntry is one audit row surfaced to diagnostics consumers.
type JournalEntry struct {
	ID        int64  `json:"id"`
	RunID     string `json:"run_id"`
	Kind      string `json:"kind"`
	Step      int    `json:"step"`
	Trigger   string `json:"trigger,omitempty"`
	Role      string `json:"role,omitempty"`
	Input     string `json:"input,omitempty"`
	CreatedAt string `json:"created_at"`
}
