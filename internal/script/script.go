// Package script defines the mission step table: an ordered list of steps,
// each advanced by a typed command, a recognized spoken line, or an
// automatic timed action. Tables are loaded from TOML and are immutable
// after validation.
package script

import "time"

// Trigger identifies how a step is consumed.
type Trigger string

const (
	TriggerCommand Trigger = "command"
	TriggerVoice   Trigger = "voice"
	TriggerAuto    Trigger = "auto"
)

// EffectKind identifies a broadcastable side effect of completing a step.
type EffectKind string

const (
	EffectPlayAudio    EffectKind = "play_audio"
	EffectShowImage    EffectKind = "show_image"
	EffectReplaceImage EffectKind = "replace_image"
	EffectHideImages   EffectKind = "hide_images"
	EffectSetGauges    EffectKind = "set_gauges"
	EffectResetGauges  EffectKind = "reset_gauges"
	EffectLockdown     EffectKind = "lockdown"
	EffectSubtitle     EffectKind = "subtitle"
	EffectPlayVideo    EffectKind = "play_video"
)

// Effect is one side effect of a completed step. Only the fields relevant
// to its kind are set.
type Effect struct {
	Kind     EffectKind     `toml:"kind"`
	Audio    string         `toml:"audio,omitempty"`
	Image    string         `toml:"image,omitempty"`
	Subtitle string         `toml:"subtitle,omitempty"`
	Video    string         `toml:"video,omitempty"`
	Gauges   map[string]int `toml:"gauges,omitempty"`
	// DelayMS defers the effect's broadcast relative to step completion.
	DelayMS int `toml:"delay_ms,omitempty"`
}

// Delay returns the effect's broadcast offset.
func (e Effect) Delay() time.Duration { return time.Duration(e.DelayMS) * time.Millisecond }

// Step is one entry in the mission sequence.
type Step struct {
	Index   int     `toml:"index"`
	Trigger Trigger `toml:"trigger"`
	// Role gates command and voice steps to one participant role.
	Role string `toml:"role,omitempty"`
	// Expected is the exact command text or the canonical spoken line.
	Expected string `toml:"expected,omitempty"`
	// Aliases are alternate phrasings that also satisfy a voice step.
	Aliases []string `toml:"aliases,omitempty"`
	// DelayMS is how long an auto step waits before firing.
	DelayMS int `toml:"delay_ms,omitempty"`
	// WaitForAudio parks an auto step until the named audio finishes.
	WaitForAudio string `toml:"wait_for_audio,omitempty"`
	// PostWaitDelayMS runs after the awaited audio ends, before firing.
	PostWaitDelayMS int      `toml:"post_wait_delay_ms,omitempty"`
	Effects         []Effect `toml:"effects,omitempty"`
	Note            string   `toml:"note,omitempty"`
}

// AutoDelay returns the pre-fire delay for auto steps.
func (s Step) AutoDelay() time.Duration { return time.Duration(s.DelayMS) * time.Millisecond }

// PostWaitDelay returns the delay applied after an awaited audio ends.
func (s Step) PostWaitDelay() time.Duration {
	return time.Duration(s.PostWaitDelayMS) * time.Millisecond
}

// Roles declares the participant roles a script uses.
type Roles struct {
	// Exclusive roles are held by at most one live participant each.
	Exclusive []string `toml:"exclusive"`
	// Observer is the shared audience role; any number may hold it.
	Observer string `toml:"observer"`
}

// Script is a validated, immutable mission definition.
type Script struct {
	Name  string `toml:"name"`
	Roles Roles  `toml:"roles"`
	// Gauges is the baseline reading for each named gauge, restored on
	// reset and by reset_gauges effects.
	Gauges map[string]int `toml:"gauges"`
	// Dialogue maps an audio id to the line shown while it plays.
	Dialogue map[string]string `toml:"dialogue"`
	Steps    []Step            `toml:"steps"`
}

// Len returns the number of steps.
func (s *Script) Len() int { return len(s.Steps) }

// StepAt returns the step at index, or false when index is out of range.
func (s *Script) StepAt(index int) (Step, bool) {
	if index < 0 || index >= len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[index], true
}

// DialogueFor returns the display line for an audio id, falling back to
// the empty string.
func (s *Script) DialogueFor(audio string) string {
	return s.Dialogue[audio]
}

// IsExclusiveRole reports whether role is one of the script's exclusive
// participant roles.
func (s *Script) IsExclusiveRole(role string) bool {
	for _, r := range s.Roles.Exclusive {
		if r == role {
			return true
		}
	}
	return false
}

// IsObserverRole reports whether role is the shared observer role.
func (s *Script) IsObserverRole(role string) bool {
	return role != "" && role == s.Roles.Observer
}

// KnownRole reports whether role appears in the script's role declaration.
func (s *Script) KnownRole(role string) bool {
	return s.IsExclusiveRole(role) || s.IsObserverRole(role)
}
