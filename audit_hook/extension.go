// Package audithook bridges Courier lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// any particular audit backend directly. Callers inject a RecorderFunc
// adapter that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	"github.com/xraph/courier/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnChannelCreated    = (*Extension)(nil)
	_ plugin.OnMemberJoined      = (*Extension)(nil)
	_ plugin.OnJoinFeeCollected  = (*Extension)(nil)
	_ plugin.OnMessageTipped     = (*Extension)(nil)
	_ plugin.OnWithdrawal        = (*Extension)(nil)
	_ plugin.OnPayoutFailed      = (*Extension)(nil)
	_ plugin.OnPayoutCompensated = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend on
// a concrete audit trail module — callers inject the backend at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Courier lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Channel lifecycle hooks
// ──────────────────────────────────────────────────

// OnChannelCreated implements plugin.OnChannelCreated.
func (e *Extension) OnChannelCreated(ctx context.Context, ch interface{}) error {
	var resourceID, creator string
	if c, ok := ch.(*channel.Channel); ok {
		resourceID = strconv.FormatInt(c.ID, 10)
		creator = c.Creator
	}
	return e.record(ctx, ActionChannelCreated, SeverityInfo, OutcomeSuccess,
		ResourceChannel, resourceID, CategoryMessaging, nil,
		"creator", creator,
	)
}

// OnMemberJoined implements plugin.OnMemberJoined.
func (e *Extension) OnMemberJoined(ctx context.Context, channelID int64, acct string) error {
	return e.record(ctx, ActionMemberJoined, SeverityInfo, OutcomeSuccess,
		ResourceChannel, strconv.FormatInt(channelID, 10), CategoryAccess, nil,
		"account", acct,
	)
}

// OnJoinFeeCollected implements plugin.OnJoinFeeCollected.
func (e *Extension) OnJoinFeeCollected(ctx context.Context, channelID int64, creator string, amount interface{}) error {
	return e.record(ctx, ActionJoinFeeCollected, SeverityInfo, OutcomeSuccess,
		ResourceChannel, strconv.FormatInt(channelID, 10), CategoryPayment, nil,
		"creator", creator,
		"amount", fmt.Sprintf("%v", amount),
	)
}

// ──────────────────────────────────────────────────
// Message hooks
// ──────────────────────────────────────────────────

// OnMessageTipped implements plugin.OnMessageTipped.
func (e *Extension) OnMessageTipped(ctx context.Context, receipt interface{}) error {
	var resourceID, from, to, amount string
	if r, ok := receipt.(*message.Receipt); ok {
		resourceID = r.ID
		from = r.From
		to = r.To
		amount = r.Amount.String()
	}
	return e.record(ctx, ActionMessageTipped, SeverityInfo, OutcomeSuccess,
		ResourceMessage, resourceID, CategoryPayment, nil,
		"from", from,
		"to", to,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnWithdrawal implements plugin.OnWithdrawal.
func (e *Extension) OnWithdrawal(ctx context.Context, p interface{}) error {
	resourceID, acct, amount := payoutDetails(p)
	return e.record(ctx, ActionWithdrawalPaid, SeverityInfo, OutcomeSuccess,
		ResourcePayout, resourceID, CategoryPayment, nil,
		"account", acct,
		"amount", amount,
	)
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (e *Extension) OnPayoutFailed(ctx context.Context, p interface{}, err error) error {
	resourceID, acct, amount := payoutDetails(p)
	return e.record(ctx, ActionPayoutFailed, SeverityCritical, OutcomeFailure,
		ResourcePayout, resourceID, CategoryPayment, err,
		"account", acct,
		"amount", amount,
	)
}

// OnPayoutCompensated implements plugin.OnPayoutCompensated.
func (e *Extension) OnPayoutCompensated(ctx context.Context, p interface{}) error {
	resourceID, acct, amount := payoutDetails(p)
	return e.record(ctx, ActionPayoutCompensated, SeverityWarning, OutcomeSuccess,
		ResourcePayout, resourceID, CategoryPayment, nil,
		"account", acct,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func payoutDetails(p interface{}) (resourceID, acct, amount string) {
	if po, ok := p.(*payout.Payout); ok {
		return po.ID.String(), po.Account, po.Amount.String()
	}
	return "", "", ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
