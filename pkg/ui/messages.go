package ui

import "time"

// Message types for TUI updates

// ConnectionMsg is sent when the transport state or pair changes.
type ConnectionMsg struct {
	State  string
	PairID uint64
	Push   bool
}

// BlockMsg is sent for every emitted block height.
type BlockMsg struct {
	Number uint64
}

// ClockMsg carries the chain clock.
type ClockMsg struct {
	ChainTime time.Time
}

// NonceMsg is sent when the nonce changes. Known is false while a resync
// is in flight.
type NonceMsg struct {
	Nonce   uint64
	Known   bool
	Address string
}

// QueueStatsMsg carries queue counters.
type QueueStatsMsg struct {
	Queued    int
	Submitted uint64
	Failed    uint64
	Confirmed uint64
	Reverted  uint64
}

// GasPriceMsg is sent when the suggested fee cap changes.
type GasPriceMsg struct {
	GweiPrice float64
}

// SubmissionMsg reports a submission or its confirmation outcome.
type SubmissionMsg struct {
	Hash   string
	Nonce  uint64
	Status string // "pending", "confirmed", "reverted", "timeout", "failed"
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
