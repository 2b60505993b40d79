package relay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func TestSessionManager_NoGoroutineLeakAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewSessionManager(Config{SessionTTL: 20 * time.Millisecond})

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if err := s.RegisterSource(newFakeSource([]byte("abcdef"))); err != nil {
		t.Fatalf("RegisterSource() error: %v", err)
	}
	if err := s.RegisterDestination(newFakeDestination()); err != nil {
		t.Fatalf("RegisterDestination() error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestSessionManager_NoGoroutineLeakOnMidStreamDeactivate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewSessionManager(Config{SessionTTL: time.Second})

	s, err := m.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if err := s.RegisterSource(newBlockingFakeSource()); err != nil {
		t.Fatalf("RegisterSource() error: %v", err)
	}
	if err := s.RegisterDestination(newFakeDestination()); err != nil {
		t.Fatalf("RegisterDestination() error: %v", err)
	}

	s.Deactivate()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
