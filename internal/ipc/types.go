// Package ipc exposes daemon control over a unix-socket JSON-RPC
// channel. The CLI is the only intended client.
package ipc

import "callsign/internal/api"

// ServiceName is the registered RPC service.
const ServiceName = "Callsign"

type StatusArgs struct{}

type StatusReply struct {
	Status api.DaemonStatus `json:"status"`
}

type ResetArgs struct{}

type ResetReply struct {
	// RunID identifies the fresh run started by the reset.
	RunID string `json:"run_id"`
}

type AdvanceArgs struct{}

type AdvanceReply struct {
	Advanced bool `json:"advanced"`
	// Step is the step pointer after the advance.
	Step int `json:"step"`
}

type JournalArgs struct {
	// RunID restricts results to one run; empty means most recent rows.
	RunID string `json:"run_id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type JournalReply struct {
	Entries []api.JournalEntry `json:"entries"`
}

type TestNotificationArgs struct{}

type TestNotificationReply struct{}

type StopArgs struct{}

type StopReply struct{}
