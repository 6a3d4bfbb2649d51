// Package notifications delivers push notifications about mission
// lifecycle events via ntfy. When no topic is configured every call is a
// cheap no-op, so callers never need to branch.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callsign/internal/config"
	"callsign/internal/logging"
)

// Service publishes mission lifecycle notifications.
type Service interface {
	MissionStarted(ctx context.Context, mission string)
	MissionCompleted(ctx context.Context, mission string)
	MissionStalled(ctx context.Context, mission string, step int)
	Error(ctx context.Context, message string)
	// Test sends a throwaway notification so operators can verify setup.
	Test(ctx context.Context) error
}

// NewFromConfig returns an ntfy-backed Service, or a no-op when
// notifications are disabled or unconfigured.
func NewFromConfig(cfg config.NotificationsConfig, logger *slog.Logger) Service {
	if !cfg.Enabled || cfg.Topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint: strings.TrimRight(cfg.NtfyURL, "/") + "/" + url.PathEscape(cfg.Topic),
		priority: cfg.Priority,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logging.NewComponentLogger(logger, "notifications"),
	}
}

type ntfyService struct {
	endpoint string
	priority string
	client   *http.Client
	logger   *slog.Logger
}

func (s *ntfyService) MissionStarted(ctx context.Context, mission string) {
	s.send(ctx, "Mission started", fmt.Sprintf("Mission %q is underway.", mission), "arrow_forward")
}

func (s *ntfyService) MissionCompleted(ctx context.Context, mission string) {
	s.send(ctx, "Mission complete", fmt.Sprintf("Mission %q reached the end of its script.", mission), "white_check_mark")
}

func (s *ntfyService) MissionStalled(ctx context.Context, mission string, step int) {
	s.send(ctx, "Mission stalled",
		fmt.Sprintf("Mission %q was force-advanced past step %d.", mission, step), "warning")
}

func (s *ntfyService) Error(ctx context.Context, message string) {
	s.send(ctx, "callsignd error", message, "rotating_light")
}

func (s *ntfyService) Test(ctx context.Context) error {
	return s.publish(ctx, "Test notification", "callsignd notifications are working.", "bell")
}

// send logs delivery failures instead of surfacing them; a missed push
// must never affect mission progression.
func (s *ntfyService) send(ctx context.Context, title, message, tags string) {
	if err := s.publish(ctx, title, message, tags); err != nil {
		s.logger.Warn("notification delivery failed", logging.Error(err))
	}
}

func (s *ntfyService) publish(ctx context.Context, title, message, tags string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	if s.priority != "" {
		req.Header.Set("Priority", s.priority)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

type noopService struct{}

func (noopService) MissionStarted(context.Context, string)      {}
func (noopService) MissionCompleted(context.Context, string)    {}
func (noopService) MissionStalled(context.Context, string, int) {}
func (noopService) Error(context.Context, string)               {}
func (noopService) Test(context.Context) error {
	return fmt.Errorf("notifications are not configured")
}
