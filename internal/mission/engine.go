// Package mission implements the shared mission state machine: one step
// pointer advanced by typed commands, recognized spoken lines, and timed
// automatic actions, with broadcastable side effects that fire exactly
// once per step.
package mission

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"callsign/internal/api"
	"callsign/internal/logging"
	"callsign/internal/match"
	"callsign/internal/notifications"
	"callsign/internal/script"
)

// State is the engine's lifecycle phase.
type State string

const (
	StateWaiting  State = "waiting"
	StateRunning  State = "running"
	StateComplete State = "complete"
)

// Publisher fans an event out to every connected client. Implementations
// must not block; the engine calls it while holding its lock.
type Publisher interface {
	Publish(event api.Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(event api.Event)

func (f PublisherFunc) Publish(event api.Event) { f(event) }

// Recorder receives audit rows for the run journal. Implementations must
// be cheap and must never fail the caller.
type Recorder interface {
	RunEvent(runID, kind string, step int)
	StepTransition(runID string, step int, trigger, role, input string)
}

// Options configures a new Engine.
type Options struct {
	Script    *script.Script
	Matcher   *match.Matcher
	Threshold int
	Publisher Publisher
	Recorder  Recorder
	Notifier  notifications.Service
	Logger    *slog.Logger
}

type pendingWait struct {
	audio string
	step  int
}

// Engine owns all mission state behind a single mutex. Handlers, timer
// callbacks, and queries all serialize through it, so interleavings are
// first-committer-wins and side effects cannot double-fire.
type Engine struct {
	mu        sync.Mutex
	script    *script.Script
	matcher   *match.Matcher
	threshold int
	pub       Publisher
	rec       Recorder
	notifier  notifications.Service
	logger    *slog.Logger

	state    State
	index    int
	runID    string
	gauges   map[string]int
	lockdown bool
	image    string
	wait     *pendingWait
	// generation invalidates timers scheduled before a reset or force
	// advance; a stale timer observing a different generation is a no-op.
	generation uint64
}

// New builds an Engine in the WAITING state at step 0.
func New(opts Options) *Engine {
	e := &Engine{
		script:    opts.Script,
		matcher:   opts.Matcher,
		threshold: opts.Threshold,
		pub:       opts.Publisher,
		rec:       opts.Recorder,
		notifier:  opts.Notifier,
		logger:    logging.NewComponentLogger(opts.Logger, "mission"),
		state:     StateWaiting,
		runID:     uuid.NewString(),
		gauges:    copyGauges(opts.Script.Gauges),
	}
	if e.matcher == nil {
		e.matcher = match.New(nil)
	}
	if e.threshold <= 0 {
		e.threshold = 50
	}
	return e
}

// RunID identifies the current run for journal correlation.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Snapshot returns the full queryable mission state.
func (e *Engine) Snapshot() api.MissionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() api.MissionStatus {
	status := api.MissionStatus{
		Script:   e.script.Name,
		State:    string(e.state),
		Step:     e.index,
		Total:    e.script.Len(),
		Gauges:   copyGauges(e.gauges),
		Lockdown: e.lockdown,
		Image:    e.image,
		Expected: e.expectedLocked(),
	}
	if e.wait != nil {
		status.PendingWait = e.wait.audio
	}
	return status
}

// expectedLocked describes the input that unlocks the current step, or
// nil when the step is automatic or the mission is complete.
func (e *Engine) expectedLocked() *api.ExpectedInputPayload {
	step, ok := e.script.StepAt(e.index)
	if !ok || e.state == StateComplete {
		return nil
	}
	switch step.Trigger {
	case script.TriggerCommand, script.TriggerVoice:
		return &api.ExpectedInputPayload{
			Role: step.Role,
			Kind: string(step.Trigger),
			Text: step.Expected,
			Step: step.Index,
		}
	default:
		return nil
	}
}

func (e *Engine) publish(event api.Event) {
	if e.pub != nil {
		e.pub.Publish(event)
	}
}

func (e *Engine) record(fn func(Recorder)) {
	if e.rec != nil {
		fn(e.rec)
	}
}

func copyGauges(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func normalizeCommand(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
