package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"callsign/internal/api"
)

// Client talks to a running daemon over its control socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon (is callsignd running?): %w", err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(method string, args, reply any) error {
	return c.rpc.Call(ServiceName+"."+method, args, reply)
}

// Status fetches the daemon status snapshot.
func (c *Client) Status() (api.DaemonStatus, error) {
	var reply StatusReply
	if err := c.call("Status", StatusArgs{}, &reply); err != nil {
		return api.DaemonStatus{}, err
	}
	return reply.Status, nil
}

// Reset restarts the mission and returns the new run id.
func (c *Client) Reset() (string, error) {
	var reply ResetReply
	if err := c.call("Reset", ResetArgs{}, &reply); err != nil {
		return "", err
	}
	return reply.RunID, nil
}

// ForceAdvance skips the current step.
func (c *Client) ForceAdvance() (int, bool, error) {
	var reply AdvanceReply
	if err := c.call("ForceAdvance", AdvanceArgs{}, &reply); err != nil {
		return 0, false, err
	}
	return reply.Step, reply.Advanced, nil
}

// Journal fetches audit rows.
func (c *Client) Journal(ctx context.Context, runID string, limit int) ([]api.JournalEntry, error) {
	var reply JournalReply
	if err := c.call("Journal", JournalArgs{RunID: runID, Limit: limit}, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// TestNotification asks the daemon to send a test push notification.
func (c *Client) TestNotification() error {
	return c.call("TestNotification", TestNotificationArgs{}, &TestNotificationReply{})
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() error {
	return c.call("Stop", StopArgs{}, &StopReply{})
}
