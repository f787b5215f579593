package audithook

// Action constants for audit events.
const (
	// Channel actions
	ActionChannelCreated   = "channel.created"
	ActionMemberJoined     = "channel.member_joined"
	ActionJoinFeeCollected = "channel.join_fee_collected"

	// Message actions
	ActionMessagePosted = "message.posted"
	ActionMessageTipped = "message.tipped"

	// Payout actions
	ActionWithdrawalPaid    = "payout.paid"
	ActionPayoutFailed      = "payout.failed"
	ActionPayoutCompensated = "payout.compensated"
)

// Resource constants for audit events.
const (
	ResourceChannel = "channel"
	ResourceMessage = "message"
	ResourceBalance = "balance"
	ResourcePayout  = "payout"
)

// Category constants for audit events.
const (
	CategoryMessaging = "messaging"
	CategoryAccess    = "access"
	CategoryPayment   = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
