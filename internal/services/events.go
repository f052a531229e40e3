package services

import (
	"context"
	"time"

	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event kinds published after a blocked verdict is committed.
const (
	EventApplicationBlocked = "application.blocked"
	EventWebsiteBlocked     = "website.blocked"
	EventDeviceBlocked      = "device.blocked"
)

// PolicyEvent describes a blocked application, website or device.
type PolicyEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	MachineID  string    `json:"machine_id"`
	Username   string    `json:"username,omitempty"`
	Subject    string    `json:"subject"`
	CatalogID  int64     `json:"catalog_id"`
	RuleID     int64     `json:"rule_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newPolicyEvent(kind, machineID, username, subject string, catalogID, ruleID int64, at time.Time) PolicyEvent {
	return PolicyEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		MachineID:  machineID,
		Username:   username,
		Subject:    subject,
		CatalogID:  catalogID,
		RuleID:     ruleID,
		OccurredAt: at,
	}
}

// EventPublisher delivers policy events to the alerting side.
type EventPublisher interface {
	Publish(ctx context.Context, event PolicyEvent) error
}

// DirectPublisher hands events straight to the alert service. It is used
// when no message broker is configured.
type DirectPublisher struct {
	alerts *AlertService
}

func NewDirectPublisher(alerts *AlertService) *DirectPublisher {
	return &DirectPublisher{alerts: alerts}
}

func (p *DirectPublisher) Publish(ctx context.Context, event PolicyEvent) error {
	return p.alerts.HandleEvent(ctx, event)
}

// discardPublisher drops every event.
type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, PolicyEvent) error { return nil }

// publish sends events after a commit. Delivery failures are logged and
// never fail the request that produced them.
func publish(ctx context.Context, p EventPublisher, events ...PolicyEvent) {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			logctx.Warn(ctx, "failed to publish policy event",
				zap.String("kind", e.Kind),
				zap.String("event_id", e.ID),
				zap.Error(err))
		}
	}
}
