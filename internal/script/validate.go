package script

import "fmt"

// Validate checks structural invariants of a decoded script. Any failure
// is fatal at load time; the engine never sees an invalid table.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.Name)
	}
	if len(s.Roles.Exclusive) == 0 {
		return fmt.Errorf("script %q declares no exclusive roles", s.Name)
	}
	for _, role := range s.Roles.Exclusive {
		if role == "" {
			return fmt.Errorf("script %q declares an empty exclusive role", s.Name)
		}
		if role == s.Roles.Observer {
			return fmt.Errorf("role %q is both exclusive and observer", role)
		}
	}
	for name, value := range s.Gauges {
		if value < 0 || value > 100 {
			return fmt.Errorf("gauge %q baseline %d out of range 0..100", name, value)
		}
	}

	// Audio ids become eligible wait targets once an earlier step cues them.
	cued := make(map[string]bool)

	for i, step := range s.Steps {
		if step.Index != i {
			return fmt.Errorf("step at position %d has index %d; indices must be contiguous from 0", i, step.Index)
		}
		// Auto steps are armed by the advance out of the previous step, so
		// a mission opening with one would never leave WAITING.
		if i == 0 && step.Trigger == TriggerAuto {
			return fmt.Errorf("step 0 must not be automatic; the mission needs an input to start")
		}
		switch step.Trigger {
		case TriggerCommand, TriggerVoice:
			if step.Expected == "" {
				return fmt.Errorf("step %d: %s step requires expected text", i, step.Trigger)
			}
			if step.Role == "" {
				return fmt.Errorf("step %d: %s step requires a role", i, step.Trigger)
			}
			if !s.IsExclusiveRole(step.Role) {
				return fmt.Errorf("step %d: role %q is not an exclusive role", i, step.Role)
			}
			if step.WaitForAudio != "" {
				return fmt.Errorf("step %d: wait_for_audio is only valid on auto steps", i)
			}
		case TriggerAuto:
			if step.Expected != "" {
				return fmt.Errorf("step %d: auto step must not declare expected text", i)
			}
			if step.WaitForAudio != "" && !cued[step.WaitForAudio] {
				return fmt.Errorf("step %d: wait_for_audio %q is not cued by any earlier step", i, step.WaitForAudio)
			}
		default:
			return fmt.Errorf("step %d: unknown trigger %q", i, step.Trigger)
		}
		if step.DelayMS < 0 || step.PostWaitDelayMS < 0 {
			return fmt.Errorf("step %d: delays must be non-negative", i)
		}
		for j, effect := range step.Effects {
			if err := validateEffect(effect); err != nil {
				return fmt.Errorf("step %d effect %d: %w", i, j, err)
			}
			if effect.Kind == EffectPlayAudio {
				cued[effect.Audio] = true
			}
		}
	}
	return nil
}

func validateEffect(e Effect) error {
	if e.DelayMS < 0 {
		return fmt.Errorf("delay must be non-negative")
	}
	switch e.Kind {
	case EffectPlayAudio:
		if e.Audio == "" {
			return fmt.Errorf("play_audio requires an audio id")
		}
	case EffectShowImage, EffectReplaceImage:
		if e.Image == "" {
			return fmt.Errorf("%s requires an image", e.Kind)
		}
	case EffectSubtitle:
		if e.Subtitle == "" {
			return fmt.Errorf("subtitle requires text")
		}
	case EffectPlayVideo:
		if e.Video == "" {
			return fmt.Errorf("play_video requires a video")
		}
	case EffectSetGauges:
		if len(e.Gauges) == 0 {
			return fmt.Errorf("set_gauges requires gauge values")
		}
		for name, value := range e.Gauges {
			if value < 0 || value > 100 {
				return fmt.Errorf("gauge %q value %d out of range 0..100", name, value)
			}
		}
	case EffectHideImages, EffectResetGauges, EffectLockdown:
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	return nil
}
