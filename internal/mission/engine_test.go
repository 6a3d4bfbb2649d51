package mission

import (
	"sync"
	"testing"
	"time"

	"callsign/internal/api"
	"callsign/internal/match"
	"callsign/internal/script"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []api.Event
}

func (p *capturePublisher) Publish(event api.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (p *capturePublisher) last(eventType string) (api.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i], true
		}
	}
	return api.Event{}, false
}

type captureRecorder struct {
	mu          sync.Mutex
	runEvents   []string
	transitions []int
}

func (r *captureRecorder) RunEvent(runID, kind string, step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runEvents = append(r.runEvents, kind)
}

func (r *captureRecorder) StepTransition(runID string, step int, trigger, role, input string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, step)
}

func testScript(t *testing.T, steps []script.Step) *script.Script {
	t.Helper()
	s := &script.Script{
		Name: "test",
		Roles: script.Roles{
			Exclusive: []string{"alpha", "beta"},
			Observer:  "crowd",
		},
		Gauges: map[string]int{"cpu": 25, "gpu": 30},
		Steps:  steps,
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("test script invalid: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T, steps []script.Step) (*Engine, *capturePublisher, *captureRecorder) {
	t.Helper()
	pub := &capturePublisher{}
	rec := &captureRecorder{}
	e := New(Options{
		Script:    testScript(t, steps),
		Matcher:   match.New([]string{"lockdown"}, []string{"yes", "yeah", "affirmative"}),
		Threshold: 50,
		Publisher: pub,
		Recorder:  rec,
	})
	return e, pub, rec
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCommandExactMatch(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "bash mission"},
		{Index: 1, Trigger: script.TriggerCommand, Role: "alpha", Expected: "bash meet"},
	})

	if e.SubmitCommand("bash missions", "alpha") {
		t.Fatal("near-miss command must be rejected")
	}
	if got := e.Snapshot().Step; got != 0 {
		t.Fatalf("step = %d after rejection, want 0", got)
	}
	if !e.SubmitCommand("  Bash Mission  ", "alpha") {
		t.Fatal("case and whitespace variants must be accepted")
	}
	if got := e.Snapshot().Step; got != 1 {
		t.Fatalf("step = %d, want 1", got)
	}
	if got := e.Snapshot().State; got != string(StateRunning) {
		t.Fatalf("state = %s, want running", got)
	}
}

func TestRoleGatingIsHard(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "begin"},
		{Index: 1, Trigger: script.TriggerVoice, Role: "alpha", Expected: "All clear."},
	})

	if e.SubmitCommand("begin", "beta") {
		t.Fatal("command from wrong role must be rejected")
	}
	if !e.SubmitCommand("begin", "alpha") {
		t.Fatal("command from required role rejected")
	}
	// Exact expected text from the wrong role still never advances.
	if e.SubmitVoice("All clear.", "beta") {
		t.Fatal("voice from wrong role must be rejected before text matching")
	}
	if got := e.Snapshot().Step; got != 1 {
		t.Fatalf("step = %d, want 1", got)
	}
}

func TestVoiceCanonicalLineBroadcast(t *testing.T) {
	e, pub, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerVoice, Role: "alpha", Expected: "Razor, put settlement 37 on lockdown."},
	})

	if !e.SubmitVoice("uh put settlement on lockdown please", "alpha") {
		t.Fatal("fuzzy transcript should be accepted")
	}
	ev, ok := pub.last(api.EventVoiceAccepted)
	if !ok {
		t.Fatal("no voiceAccepted event")
	}
	payload := ev.Payload.(api.VoiceAcceptedPayload)
	if payload.Line != "Razor, put settlement 37 on lockdown." {
		t.Fatalf("broadcast line = %q, want the canonical script line", payload.Line)
	}
}

func TestVoiceSynonymAccepted(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerVoice, Role: "alpha", Expected: "Yes."},
	})
	if !e.SubmitVoice("yeah", "alpha") {
		t.Fatal("synonym transcript should be accepted")
	}
}

func TestVoiceAliasAccepted(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{
			Index: 0, Trigger: script.TriggerVoice, Role: "alpha",
			Expected: "2 alpha 1-1?",
			Aliases:  []string{"two alpha"},
		},
	})
	if !e.SubmitVoice("two alpha", "alpha") {
		t.Fatal("alias transcript should be accepted")
	}
}

func TestVoiceRejectionLeavesStateUntouched(t *testing.T) {
	e, pub, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerVoice, Role: "alpha", Expected: "Scan the entirety of settlement 37."},
	})
	if e.SubmitVoice("completely different words", "alpha") {
		t.Fatal("unrelated transcript must be rejected")
	}
	if got := e.Snapshot().Step; got != 0 {
		t.Fatalf("step = %d after rejection, want 0", got)
	}
	if n := pub.count(api.EventVoiceAccepted); n != 0 {
		t.Fatalf("voiceAccepted events = %d, want 0", n)
	}
}

func TestAutoChainFiresEachStepOnce(t *testing.T) {
	const delay = 10 * time.Millisecond
	e, pub, rec := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go"},
		{Index: 1, Trigger: script.TriggerAuto, DelayMS: 10,
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "a.mp3"}}},
		{Index: 2, Trigger: script.TriggerAuto, DelayMS: 10,
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "b.mp3"}}},
		{Index: 3, Trigger: script.TriggerAuto, DelayMS: 10,
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "c.mp3"}}},
		{Index: 4, Trigger: script.TriggerCommand, Role: "alpha", Expected: "halt"},
	})

	start := time.Now()
	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	waitUntil(t, time.Second, func() bool { return e.Snapshot().Step == 4 })

	if elapsed := time.Since(start); elapsed < 3*delay {
		t.Fatalf("chain completed in %v, want at least %v", elapsed, 3*delay)
	}
	if n := pub.count(api.EventPlayAudio); n != 3 {
		t.Fatalf("playAudio events = %d, want 3", n)
	}
	rec.mu.Lock()
	transitions := len(rec.transitions)
	rec.mu.Unlock()
	if transitions != 4 {
		t.Fatalf("recorded transitions = %d, want 4", transitions)
	}
}

func TestCompletionWaitMatchesOnlyAwaitedAudio(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go",
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "briefing.mp3"}}},
		{Index: 1, Trigger: script.TriggerAuto, WaitForAudio: "briefing.mp3", PostWaitDelayMS: 5,
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "next.mp3"}}},
		{Index: 2, Trigger: script.TriggerCommand, Role: "alpha", Expected: "halt"},
	})

	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	if got := e.Snapshot().PendingWait; got != "briefing.mp3" {
		t.Fatalf("pending wait = %q, want briefing.mp3", got)
	}

	// Unrelated completions are no-ops.
	e.NotifyAudioCompletion("other.mp3")
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot().Step; got != 1 {
		t.Fatalf("step = %d after unrelated audio, want 1", got)
	}

	e.NotifyAudioCompletion("briefing.mp3")
	waitUntil(t, time.Second, func() bool { return e.Snapshot().Step == 2 })

	// A duplicate completion report cannot re-fire the step.
	e.NotifyAudioCompletion("briefing.mp3")
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot().Step; got != 2 {
		t.Fatalf("step = %d after duplicate audio, want 2", got)
	}
}

func TestForceAdvanceRecoversParkedWait(t *testing.T) {
	e, _, rec := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go",
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "briefing.mp3"}}},
		{Index: 1, Trigger: script.TriggerAuto, WaitForAudio: "briefing.mp3"},
		{Index: 2, Trigger: script.TriggerCommand, Role: "alpha", Expected: "halt"},
	})

	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	if !e.ForceAdvance() {
		t.Fatal("ForceAdvance returned false")
	}
	snap := e.Snapshot()
	if snap.Step != 2 || snap.PendingWait != "" {
		t.Fatalf("after force advance: step=%d wait=%q", snap.Step, snap.PendingWait)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	found := false
	for _, kind := range rec.runEvents {
		if kind == "force_advance" {
			found = true
		}
	}
	if !found {
		t.Fatal("force_advance not journaled")
	}
}

func TestResetRestoresBaselineAndCancelsTimers(t *testing.T) {
	e, _, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go",
			Effects: []script.Effect{
				{Kind: script.EffectSetGauges, Gauges: map[string]int{"cpu": 93}},
				{Kind: script.EffectLockdown},
			}},
		{Index: 1, Trigger: script.TriggerAuto, DelayMS: 30,
			Effects: []script.Effect{{Kind: script.EffectPlayAudio, Audio: "late.mp3"}}},
		{Index: 2, Trigger: script.TriggerCommand, Role: "alpha", Expected: "halt"},
	})

	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	firstRun := e.RunID()
	e.Reset()

	snap := e.Snapshot()
	if snap.State != string(StateWaiting) || snap.Step != 0 {
		t.Fatalf("after reset: state=%s step=%d", snap.State, snap.Step)
	}
	if snap.Gauges["cpu"] != 25 || snap.Lockdown {
		t.Fatalf("after reset: gauges=%v lockdown=%v", snap.Gauges, snap.Lockdown)
	}
	if e.RunID() == firstRun {
		t.Fatal("reset must begin a new run")
	}

	// The timer armed before the reset must be inert.
	time.Sleep(60 * time.Millisecond)
	if got := e.Snapshot().Step; got != 0 {
		t.Fatalf("stale timer advanced step to %d", got)
	}
}

func TestMissionCompleteFiresOnce(t *testing.T) {
	e, pub, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go"},
		{Index: 1, Trigger: script.TriggerVoice, Role: "beta", Expected: "Yes."},
	})

	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	if !e.SubmitVoice("yes", "beta") {
		t.Fatal("final line rejected")
	}
	snap := e.Snapshot()
	if snap.State != string(StateComplete) {
		t.Fatalf("state = %s, want complete", snap.State)
	}
	if snap.Expected != nil {
		t.Fatal("expected input should be nil after completion")
	}
	// Further input is rejected and cannot re-enter the terminal state.
	if e.SubmitVoice("yes", "beta") || e.SubmitCommand("go", "alpha") {
		t.Fatal("input accepted after completion")
	}
	if e.ForceAdvance() {
		t.Fatal("ForceAdvance after completion should fail")
	}
	if n := pub.count(api.EventMissionComplete); n != 1 {
		t.Fatalf("missionComplete events = %d, want 1", n)
	}
}

func TestExpectedInputTargetsCurrentStep(t *testing.T) {
	e, pub, _ := newTestEngine(t, []script.Step{
		{Index: 0, Trigger: script.TriggerCommand, Role: "alpha", Expected: "go"},
		{Index: 1, Trigger: script.TriggerVoice, Role: "beta", Expected: "Status on perimeter scan?"},
	})

	if !e.SubmitCommand("go", "alpha") {
		t.Fatal("start command rejected")
	}
	ev, ok := pub.last(api.EventExpectedInput)
	if !ok {
		t.Fatal("no expectedInput event")
	}
	payload, ok := ev.Payload.(*api.ExpectedInputPayload)
	if !ok || payload == nil {
		t.Fatalf("unexpected payload %T", ev.Payload)
	}
	if payload.Role != "beta" || payload.Kind != "voice" || payload.Step != 1 {
		t.Fatalf("expected input payload = %+v", payload)
	}
}
