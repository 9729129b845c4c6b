package notifier

import (
	"time"
)

// EventType indicates what happened to a replicated or staged trade.
type EventType string

const (
	EventTradeExecuted      EventType = "trade_executed"
	EventTradeFailed        EventType = "trade_failed"
	EventTradeStaged        EventType = "trade_staged"       // Awaiting user confirmation
	EventTradeExpired       EventType = "trade_expired"      // Confirmation window elapsed
	EventTradeCancelled     EventType = "trade_cancelled"
	EventReplicationSkipped EventType = "replication_skipped" // Business rule rejected the copy
	EventStopLossTriggered  EventType = "stop_loss_triggered"
)

// Event contains all the data needed for a trade notification.
type Event struct {
	Type EventType

	// Trade context
	Network      string
	TokenAddress string
	SourceWallet string // Tracked wallet whose activity triggered this
	Side         string // buy or sell

	// Amounts
	NativeAmount float64 // Native currency spent or received
	TokensAmount float64
	Price        float64

	// Outcome info
	ProfitPercent float64 // For stop-loss recommendations
	TxHash        string
	TradeID       string
	Reason        string // Populated for skips, failures, expiries

	Timestamp time.Time
}

// Notifier is the interface for delivering trade events to a channel.
type Notifier interface {
	// Notify delivers an event for the given user.
	Notify(userID int64, event Event)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts events to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// Notify delivers the event to all registered notifiers.
func (m *MultiNotifier) Notify(userID int64, event Event) {
	for _, n := range m.notifiers {
		n.Notify(userID, event)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
