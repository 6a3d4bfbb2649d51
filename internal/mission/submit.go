package mission

import (
	"context"
	"strings"

	"callsign/internal/api"
	"callsign/internal/logging"
	"callsign/internal/script"
)

// SubmitCommand offers a typed terminal command. It is accepted only when
// the current step is a command step gated to the caller's role and the
// text matches exactly after case and whitespace normalization. Rejected
// submissions change nothing.
func (e *Engine) SubmitCommand(text, role string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateComplete {
		return false
	}
	step, ok := e.script.StepAt(e.index)
	if !ok || step.Trigger != script.TriggerCommand {
		return false
	}
	if step.Role != role {
		e.logger.Debug("command from wrong role",
			logging.Int(logging.FieldStep, e.index),
			logging.String(logging.FieldRole, role))
		return false
	}
	if normalizeCommand(text) != normalizeCommand(step.Expected) {
		e.logger.Debug("command mismatch",
			logging.Int(logging.FieldStep, e.index),
			logging.String("input", text))
		return false
	}

	e.beginRunLocked()
	e.applyEffectsLocked(step)
	e.record(func(r Recorder) {
		r.StepTransition(e.runID, step.Index, string(step.Trigger), role, step.Expected)
	})
	e.logger.Info("command accepted",
		logging.Int(logging.FieldStep, step.Index),
		logging.String(logging.FieldRole, role))
	e.advanceLocked()
	return true
}

// SubmitVoice offers a recognized transcript. The step's role restriction
// is a hard gate checked before any text comparison. The transcript is
// accepted when its similarity score reaches the threshold, or the
// keyword matcher fires, or it matches one of the step's aliases. On
// acceptance the canonical scripted line is broadcast, never the raw
// transcript.
func (e *Engine) SubmitVoice(text, role string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateComplete {
		return false
	}
	step, ok := e.script.StepAt(e.index)
	if !ok || step.Trigger != script.TriggerVoice {
		return false
	}
	if step.Role != role {
		e.logger.Debug("voice from wrong role",
			logging.Int(logging.FieldStep, e.index),
			logging.String(logging.FieldRole, role))
		return false
	}

	score := e.matcher.Score(text, step.Expected)
	accepted := score >= e.threshold ||
		e.matcher.KeywordMatch(text, step.Expected) ||
		aliasMatches(text, step.Aliases)
	if !accepted {
		e.logger.Debug("voice rejected",
			logging.Int(logging.FieldStep, e.index),
			logging.Int("score", score),
			logging.String("input", text))
		return false
	}

	e.beginRunLocked()
	e.publish(api.Event{
		Type:    api.EventVoiceAccepted,
		Payload: api.VoiceAcceptedPayload{Role: role, Line: step.Expected},
	})
	e.applyEffectsLocked(step)
	e.record(func(r Recorder) {
		r.StepTransition(e.runID, step.Index, string(step.Trigger), role, text)
	})
	e.logger.Info("voice accepted",
		logging.Int(logging.FieldStep, step.Index),
		logging.String(logging.FieldRole, role),
		logging.Int("score", score))
	e.advanceLocked()
	return true
}

// beginRunLocked moves WAITING to RUNNING on the first consumed input.
func (e *Engine) beginRunLocked() {
	if e.state != StateWaiting {
		return
	}
	e.state = StateRunning
	e.record(func(r Recorder) { r.RunEvent(e.runID, "started", e.index) })
	e.logger.Info("mission started", logging.String(logging.FieldRunID, e.runID))
	if e.notifier != nil {
		name := e.script.Name
		go e.notifier.MissionStarted(context.Background(), name)
	}
}

// aliasMatches reports whether the transcript overlaps one of the step's
// alternate phrasings, in either containment direction.
func aliasMatches(input string, aliases []string) bool {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return false
	}
	for _, alias := range aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" {
			continue
		}
		if strings.Contains(in, a) || strings.Contains(a, in) {
			return true
		}
	}
	return false
}
