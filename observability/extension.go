// Package observability provides a metrics extension for Courier that records
// lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/courier/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnChannelCreated    = (*MetricsExtension)(nil)
	_ plugin.OnMemberJoined      = (*MetricsExtension)(nil)
	_ plugin.OnJoinFeeCollected  = (*MetricsExtension)(nil)
	_ plugin.OnMessagePosted     = (*MetricsExtension)(nil)
	_ plugin.OnMessageTipped     = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawal        = (*MetricsExtension)(nil)
	_ plugin.OnPayoutFailed      = (*MetricsExtension)(nil)
	_ plugin.OnPayoutCompensated = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Courier plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Channel metrics
	ChannelCreated Counter
	MemberJoined   Counter
	JoinFees       Counter

	// Message metrics
	MessagePosted Counter
	TipApplied    Counter

	// Payout metrics
	WithdrawalPaid    Counter
	PayoutFailed      Counter
	PayoutCompensated Counter

	// Error metrics
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Channel metrics
		ChannelCreated: factory.Counter("courier.channel.created"),
		MemberJoined:   factory.Counter("courier.channel.member.joined"),
		JoinFees:       factory.Counter("courier.channel.join_fee.collected"),

		// Message metrics
		MessagePosted: factory.Counter("courier.message.posted"),
		TipApplied:    factory.Counter("courier.tip.applied"),

		// Payout metrics
		WithdrawalPaid:    factory.Counter("courier.payout.paid"),
		PayoutFailed:      factory.Counter("courier.payout.failed"),
		PayoutCompensated: factory.Counter("courier.payout.compensated"),

		// Error metrics
		PluginErrors: factory.Counter("courier.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Channel lifecycle hooks
// ──────────────────────────────────────────────────

// OnChannelCreated implements plugin.OnChannelCreated.
func (m *MetricsExtension) OnChannelCreated(_ context.Context, _ interface{}) error {
	m.ChannelCreated.Inc()
	return nil
}

// OnMemberJoined implements plugin.OnMemberJoined.
func (m *MetricsExtension) OnMemberJoined(_ context.Context, _ int64, _ string) error {
	m.MemberJoined.Inc()
	return nil
}

// OnJoinFeeCollected implements plugin.OnJoinFeeCollected.
func (m *MetricsExtension) OnJoinFeeCollected(_ context.Context, _ int64, _ string, _ interface{}) error {
	m.JoinFees.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Message hooks
// ──────────────────────────────────────────────────

// OnMessagePosted implements plugin.OnMessagePosted.
func (m *MetricsExtension) OnMessagePosted(_ context.Context, _ interface{}) error {
	m.MessagePosted.Inc()
	return nil
}

// OnMessageTipped implements plugin.OnMessageTipped.
func (m *MetricsExtension) OnMessageTipped(_ context.Context, _ interface{}) error {
	m.TipApplied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnWithdrawal implements plugin.OnWithdrawal.
func (m *MetricsExtension) OnWithdrawal(_ context.Context, _ interface{}) error {
	m.WithdrawalPaid.Inc()
	return nil
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (m *MetricsExtension) OnPayoutFailed(_ context.Context, _ interface{}, _ error) error {
	m.PayoutFailed.Inc()
	return nil
}

// OnPayoutCompensated implements plugin.OnPayoutCompensated.
func (m *MetricsExtension) OnPayoutCompensated(_ context.Context, _ interface{}) error {
	m.PayoutCompensated.Inc()
	return nil
}
