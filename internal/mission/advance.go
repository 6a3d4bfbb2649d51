package mission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"callsign/internal/api"
	"callsign/internal/logging"
	"callsign/internal/script"
)

// advanceLocked moves the step pointer forward exactly once, broadcasts
// the transition, and arms the next step if it is automatic.
func (e *Engine) advanceLocked() {
	e.index++
	if e.index >= e.script.Len() {
		e.completeLocked()
		return
	}

	e.publish(api.Event{
		Type:    api.EventStepAdvanced,
		Payload: api.StepAdvancedPayload{Step: e.index, Total: e.script.Len()},
	})
	e.publish(api.Event{Type: api.EventExpectedInput, Payload: e.expectedLocked()})

	step := e.script.Steps[e.index]
	if step.Trigger != script.TriggerAuto {
		return
	}
	if step.WaitForAudio != "" {
		e.wait = &pendingWait{audio: step.WaitForAudio, step: e.index}
		e.logger.Debug("auto step parked on audio completion",
			logging.Int(logging.FieldStep, e.index),
			logging.String(logging.FieldAudioID, step.WaitForAudio))
		return
	}
	e.scheduleAutoLocked(e.index, step.AutoDelay())
}

func (e *Engine) completeLocked() {
	e.state = StateComplete
	e.wait = nil
	e.publish(api.Event{
		Type:    api.EventStepAdvanced,
		Payload: api.StepAdvancedPayload{Step: e.index, Total: e.script.Len()},
	})
	e.publish(api.Event{Type: api.EventExpectedInput, Payload: nil})
	e.publish(api.Event{Type: api.EventMissionComplete})
	e.record(func(r Recorder) { r.RunEvent(e.runID, "completed", e.index) })
	e.logger.Info("mission complete", logging.String(logging.FieldRunID, e.runID))
	if e.notifier != nil {
		name := e.script.Name
		go e.notifier.MissionCompleted(context.Background(), name)
	}
}

// scheduleAutoLocked arms a timer for the auto step at idx. The timer
// carries the current generation so it becomes inert after a reset.
func (e *Engine) scheduleAutoLocked(idx int, delay time.Duration) {
	gen := e.generation
	time.AfterFunc(delay, func() { e.fireAuto(gen, idx) })
}

func (e *Engine) fireAuto(gen uint64, idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || idx != e.index || e.state == StateComplete {
		return
	}
	step := e.script.Steps[idx]
	e.applyEffectsLocked(step)
	e.record(func(r Recorder) {
		r.StepTransition(e.runID, idx, string(step.Trigger), "", "")
	})
	e.logger.Info("auto step fired", logging.Int(logging.FieldStep, idx))
	e.advanceLocked()
}

// NotifyAudioCompletion reports that a cued audio file finished playing.
// The report is relayed to all clients; if it matches the parked wait,
// the waiting auto step fires after its post-wait delay. Non-matching
// ids are ignored.
func (e *Engine) NotifyAudioCompletion(audio string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.publish(api.Event{
		Type:    api.EventAudioEnded,
		Payload: api.AudioEndedPayload{Audio: audio},
	})
	if e.wait == nil || !strings.EqualFold(e.wait.audio, audio) {
		return
	}
	idx := e.wait.step
	e.wait = nil
	step := e.script.Steps[idx]
	e.logger.Debug("awaited audio ended",
		logging.String(logging.FieldAudioID, audio),
		logging.Int(logging.FieldStep, idx))
	e.scheduleAutoLocked(idx, step.PostWaitDelay())
}

// ForceAdvance skips the current step without executing its side
// effects. It is the only recovery path when a completion wait never
// resolves, so it also clears any parked wait and invalidates in-flight
// timers.
func (e *Engine) ForceAdvance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateComplete {
		return false
	}
	skipped := e.index
	e.wait = nil
	e.generation++
	if e.state == StateWaiting {
		e.state = StateRunning
	}
	e.record(func(r Recorder) { r.RunEvent(e.runID, "force_advance", skipped) })
	e.logger.Warn("step force-advanced", logging.Int(logging.FieldStep, skipped))
	if e.notifier != nil {
		name := e.script.Name
		go e.notifier.MissionStalled(context.Background(), name, skipped)
	}
	e.advanceLocked()
	return true
}

// Reset returns the mission to WAITING at step 0 with baseline gauges,
// lockdown cleared, and any pending completion wait discarded. Timers
// armed before the reset observe the bumped generation and do nothing.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.wait = nil
	e.state = StateWaiting
	e.index = 0
	e.gauges = copyGauges(e.script.Gauges)
	e.lockdown = false
	e.image = ""
	e.runID = uuid.NewString()
	e.record(func(r Recorder) { r.RunEvent(e.runID, "reset", 0) })
	e.logger.Info("mission reset", logging.String(logging.FieldRunID, e.runID))
	e.publish(api.Event{Type: api.EventMissionReset, Payload: e.snapshotLocked()})
	e.publish(api.Event{Type: api.EventExpectedInput, Payload: e.expectedLocked()})
}

// applyEffectsLocked executes a completed step's side effects. Effects
// with a delay are re-applied on a generation-guarded timer so a reset
// cancels them.
func (e *Engine) applyEffectsLocked(step script.Step) {
	for _, eff := range step.Effects {
		if eff.Delay() > 0 {
			gen := e.generation
			deferred := eff
			time.AfterFunc(eff.Delay(), func() {
				e.mu.Lock()
				defer e.mu.Unlock()
				if gen != e.generation {
					return
				}
				e.applyEffectLocked(deferred)
			})
			continue
		}
		e.applyEffectLocked(eff)
	}
}

func (e *Engine) applyEffectLocked(eff script.Effect) {
	switch eff.Kind {
	case script.EffectPlayAudio:
		e.publish(api.Event{
			Type: api.EventPlayAudio,
			Payload: api.PlayAudioPayload{
				Audio:    eff.Audio,
				Dialogue: e.script.DialogueFor(eff.Audio),
			},
		})
	case script.EffectShowImage:
		e.image = eff.Image
		e.publish(api.Event{Type: api.EventShowImage, Payload: api.ImagePayload{Image: eff.Image}})
	case script.EffectReplaceImage:
		e.image = eff.Image
		e.publish(api.Event{Type: api.EventReplaceImage, Payload: api.ImagePayload{Image: eff.Image}})
	case script.EffectHideImages:
		e.image = ""
		e.publish(api.Event{Type: api.EventHideImages})
	case script.EffectSetGauges:
		for name, value := range eff.Gauges {
			e.gauges[name] = value
		}
		e.publish(api.Event{Type: api.EventUpdateGauges, Payload: api.GaugesPayload{Gauges: copyGauges(e.gauges)}})
	case script.EffectResetGauges:
		e.gauges = copyGauges(e.script.Gauges)
		e.publish(api.Event{Type: api.EventUpdateGauges, Payload: api.GaugesPayload{Gauges: copyGauges(e.gauges)}})
	case script.EffectLockdown:
		e.lockdown = true
		e.publish(api.Event{Type: api.EventLockdown, Payload: api.LockdownPayload{Active: true}})
	case script.EffectSubtitle:
		e.publish(api.Event{Type: api.EventSubtitle, Payload: api.SubtitlePayload{Text: eff.Subtitle}})
	case script.EffectPlayVideo:
		e.publish(api.Event{Type: api.EventPlayVideo, Payload: api.VideoPayload{Video: eff.Video}})
	}
}
