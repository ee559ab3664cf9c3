package app_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/infra/memory"
)

func TestQueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	notifier := newFakeNotifier()
	svc := app.NewInviteServiceWithClock(memory.NewInviteStore(), notifier, time.Hour, clock.Now)

	userID := uuid.New()
	battleID := uuid.New()
	payload := map[string]string{"type": "BATTLE_INVITATION"}

	if err := svc.Queue(ctx, userID, battleID, payload); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := svc.Queue(ctx, userID, battleID, payload); err != nil {
		t.Fatalf("queue again: %v", err)
	}

	pending, err := svc.Pending(ctx, userID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected deduplicated queue of 1, got %d", len(pending))
	}

	// A different battle queues separately.
	if err := svc.Queue(ctx, userID, uuid.New(), payload); err != nil {
		t.Fatalf("queue other battle: %v", err)
	}
	pending, _ = svc.Pending(ctx, userID)
	if len(pending) != 2 {
		t.Fatalf("expected 2 queued invites, got %d", len(pending))
	}
}

func TestFlushOnConnectDeliversPayloadVerbatim(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	notifier := newFakeNotifier()
	svc := app.NewInviteServiceWithClock(memory.NewInviteStore(), notifier, time.Hour, clock.Now)

	userID := uuid.New()
	payload := map[string]string{"type": "BATTLE_INVITATION", "id": uuid.NewString()}
	if err := svc.Queue(ctx, userID, uuid.New(), payload); err != nil {
		t.Fatalf("queue: %v", err)
	}

	// Offline: nothing flushes, nothing is consumed.
	if delivered := svc.FlushOnConnect(ctx, userID); delivered != 0 {
		t.Fatalf("expected 0 delivered while offline, got %d", delivered)
	}
	if pending, _ := svc.Pending(ctx, userID); len(pending) != 1 {
		t.Fatalf("failed flush must not consume the invite")
	}

	notifier.online[userID] = true
	if delivered := svc.FlushOnConnect(ctx, userID); delivered != 1 {
		t.Fatalf("expected 1 delivered, got %d", delivered)
	}

	msgs := notifier.received(userID)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	raw, ok := msgs[0].(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw payload, got %#v", msgs[0])
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["id"] != payload["id"] {
		t.Fatalf("payload altered in transit: %v", got)
	}

	if pending, _ := svc.Pending(ctx, userID); len(pending) != 0 {
		t.Fatalf("delivered invite still pending")
	}
}

func TestInviteExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	notifier := newFakeNotifier()
	svc := app.NewInviteServiceWithClock(memory.NewInviteStore(), notifier, time.Hour, clock.Now)

	userID := uuid.New()
	if err := svc.Queue(ctx, userID, uuid.New(), map[string]string{"type": "BATTLE_INVITATION"}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	clock.Advance(61 * time.Minute)

	// Expired invites are invisible and never flushed.
	if pending, _ := svc.Pending(ctx, userID); len(pending) != 0 {
		t.Fatalf("expired invite still listed")
	}
	notifier.online[userID] = true
	if delivered := svc.FlushOnConnect(ctx, userID); delivered != 0 {
		t.Fatalf("expired invite was delivered")
	}

	deleted, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := app.NewInviteServiceWithClock(memory.NewInviteStore(), newFakeNotifier(), time.Hour, clock.Now)

	userID := uuid.New()
	if err := svc.Queue(ctx, userID, uuid.New(), map[string]string{"type": "BATTLE_INVITATION"}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	pending, _ := svc.Pending(ctx, userID)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}

	// Only the owner can dismiss.
	if err := svc.Dismiss(ctx, pending[0].ID, uuid.New()); err == nil {
		t.Fatalf("expected error dismissing someone else's invite")
	}
	if err := svc.Dismiss(ctx, pending[0].ID, userID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if pending, _ = svc.Pending(ctx, userID); len(pending) != 0 {
		t.Fatalf("dismissed invite still pending")
	}
}
