package notifier

import (
	"errors"
	"testing"
)

// mockNotifier is a test helper that implements Notifier interface
type mockNotifier struct {
	events      []Event
	userIDs     []int64
	closeErr    error
	closeCalled bool
}

func (m *mockNotifier) Notify(userID int64, event Event) {
	m.userIDs = append(m.userIDs, userID)
	m.events = append(m.events, event)
}

func (m *mockNotifier) Close() error {
	m.closeCalled = true
	return m.closeErr
}

func TestNewMultiNotifier_FiltersNil(t *testing.T) {
	mock1 := &mockNotifier{}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, nil, mock2, nil)

	if mn.Count() != 2 {
		t.Errorf("expected 2 notifiers, got %d", mn.Count())
	}
}

func TestNewMultiNotifier_AllNil(t *testing.T) {
	mn := NewMultiNotifier(nil, nil, nil)

	if mn.Count() != 0 {
		t.Errorf("expected 0 notifiers, got %d", mn.Count())
	}
}

func TestMultiNotifier_Notify(t *testing.T) {
	mock1 := &mockNotifier{}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, mock2)

	event := Event{
		Type:         EventTradeExecuted,
		Network:      "solana",
		TokenAddress: "So11111111111111111111111111111111111111112",
		Side:         "buy",
		NativeAmount: 0.75,
	}

	mn.Notify(42, event)

	if len(mock1.events) != 1 {
		t.Errorf("expected 1 event for mock1, got %d", len(mock1.events))
	}
	if len(mock2.events) != 1 {
		t.Errorf("expected 1 event for mock2, got %d", len(mock2.events))
	}
	if mock1.userIDs[0] != 42 {
		t.Errorf("expected userID 42, got %d", mock1.userIDs[0])
	}
	if mock1.events[0].Type != EventTradeExecuted {
		t.Errorf("expected type %s, got %s", EventTradeExecuted, mock1.events[0].Type)
	}
}

func TestMultiNotifier_Notify_NoNotifiers(t *testing.T) {
	mn := NewMultiNotifier()

	// Should not panic
	mn.Notify(1, Event{Type: EventTradeStaged})
}

func TestMultiNotifier_Close_Success(t *testing.T) {
	mock1 := &mockNotifier{}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, mock2)

	err := mn.Close()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !mock1.closeCalled {
		t.Error("expected mock1.Close() to be called")
	}
	if !mock2.closeCalled {
		t.Error("expected mock2.Close() to be called")
	}
}

func TestMultiNotifier_Close_WithError(t *testing.T) {
	expectedErr := errors.New("close error")
	mock1 := &mockNotifier{closeErr: expectedErr}
	mock2 := &mockNotifier{}

	mn := NewMultiNotifier(mock1, mock2)

	err := mn.Close()

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// Both should still be called
	if !mock1.closeCalled {
		t.Error("expected mock1.Close() to be called")
	}
	if !mock2.closeCalled {
		t.Error("expected mock2.Close() to be called")
	}
}

func TestMultiNotifier_Count(t *testing.T) {
	tests := []struct {
		name      string
		notifiers []Notifier
		expected  int
	}{
		{"empty", []Notifier{}, 0},
		{"one", []Notifier{&mockNotifier{}}, 1},
		{"with nils", []Notifier{&mockNotifier{}, nil, &mockNotifier{}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mn := NewMultiNotifier(tt.notifiers...)
			if mn.Count() != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, mn.Count())
			}
		})
	}
}

func TestEventType_Values(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventTradeExecuted, "trade_executed"},
		{EventTradeFailed, "trade_failed"},
		{EventTradeStaged, "trade_staged"},
		{EventTradeExpired, "trade_expired"},
		{EventTradeCancelled, "trade_cancelled"},
		{EventReplicationSkipped, "replication_skipped"},
		{EventStopLossTriggered, "stop_loss_triggered"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}
