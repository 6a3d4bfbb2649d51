package hub

import (
	"encoding/json"
	"errors"

	"callsign/internal/api"
	"callsign/internal/logging"
	"callsign/internal/roster"
)

// inbound is the envelope clients send.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event types.
const (
	msgSelectRole      = "selectRole"
	msgReclaimRole     = "reclaimRole"
	msgTerminalCommand = "terminalCommand"
	msgVoiceLine       = "voiceLine"
	msgAudioEnded      = "audioEnded"
	msgAdvanceMission  = "advanceMission"
)

type rolePayload struct {
	Role string `json:"role"`
}

type commandPayload struct {
	Command string `json:"command"`
}

type voicePayload struct {
	Text string `json:"text"`
}

type audioPayload struct {
	Audio string `json:"audio"`
}

func (h *Hub) dispatch(conn *connection, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("malformed client message",
			logging.String(logging.FieldConnID, conn.id),
			logging.Error(err))
		return
	}

	switch msg.Type {
	case msgSelectRole:
		var p rolePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		h.handleSelectRole(conn, p.Role)
	case msgReclaimRole:
		var p rolePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		h.handleReclaimRole(conn, p.Role)
	case msgTerminalCommand:
		var p commandPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		h.handleTerminalCommand(conn, p.Command)
	case msgVoiceLine:
		var p voicePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		h.handleVoiceLine(conn, p.Text)
	case msgAudioEnded:
		var p audioPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		h.engine.NotifyAudioCompletion(p.Audio)
	case msgAdvanceMission:
		h.handleAdvanceMission(conn)
	default:
		h.logger.Debug("unknown client event",
			logging.String(logging.FieldEventType, msg.Type),
			logging.String(logging.FieldConnID, conn.id))
	}
}

func (h *Hub) handleSelectRole(conn *connection, role string) {
	if err := h.registry.Claim(role, conn.id); err != nil {
		if errors.Is(err, roster.ErrRoleTaken) || errors.Is(err, roster.ErrUnknownRole) {
			h.sendTo(conn, api.Event{Type: api.EventRoleDenied, Payload: api.RolePayload{Role: role}})
		}
		return
	}
	h.sendTo(conn, api.Event{Type: api.EventRoleGranted, Payload: api.RolePayload{Role: role}})
	h.broadcastRoster()
}

func (h *Hub) handleReclaimRole(conn *connection, role string) {
	if err := h.registry.Reclaim(role, conn.id); err != nil {
		h.sendTo(conn, api.Event{Type: api.EventRoleDenied, Payload: api.RolePayload{Role: role}})
		return
	}
	h.sendTo(conn, api.Event{Type: api.EventRoleGranted, Payload: api.RolePayload{Role: role}})
	h.broadcastRoster()
	// A reclaiming client has usually just navigated; resync it.
	h.sendSnapshot(conn)
}

// handleTerminalCommand echoes the command to every terminal, then offers
// it to the engine. Only exclusive-role holders operate terminals.
func (h *Hub) handleTerminalCommand(conn *connection, command string) {
	role, ok := h.registry.RoleOf(conn.id)
	if !ok || !h.script.IsExclusiveRole(role) {
		return
	}
	h.Publish(api.Event{
		Type:    api.EventTerminalOutput,
		Payload: api.TerminalOutputPayload{Role: role, Command: command},
	})
	h.engine.SubmitCommand(command, role)
}

func (h *Hub) handleVoiceLine(conn *connection, text string) {
	role, ok := h.registry.RoleOf(conn.id)
	if !ok || !h.script.IsExclusiveRole(role) {
		return
	}
	// Rejected transcripts are dropped silently; only accepted lines are
	// echoed, by the engine, as the canonical script text.
	h.engine.SubmitVoice(text, role)
}

func (h *Hub) handleAdvanceMission(conn *connection) {
	role, ok := h.registry.RoleOf(conn.id)
	if !ok || !h.script.IsExclusiveRole(role) {
		return
	}
	h.logger.Warn("manual advance requested",
		logging.String(logging.FieldRole, role),
		logging.String(logging.FieldConnID, conn.id))
	h.engine.ForceAdvance()
}
