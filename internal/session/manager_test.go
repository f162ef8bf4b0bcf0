package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	mgr, err := NewManager(mr.Addr(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestCreateAndGet(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	conv, err := mgr.Create(ctx, "tenant-1", "user-1", map[string]interface{}{"channel": "web"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("conversation missing ID")
	}

	got, err := mgr.Get(ctx, "tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-1" || got.TenantID != "tenant-1" {
		t.Errorf("unexpected conversation: %+v", got)
	}
}

func TestGetMissesAcrossTenants(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	conv, err := mgr.Create(ctx, "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := mgr.Get(ctx, "tenant-2", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected not-found across tenants, got %v", err)
	}
}

func TestCreateWithIDOwnership(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.CreateWithID(ctx, "conv-1", "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("CreateWithID: %v", err)
	}

	// Same user gets the existing conversation back.
	again, err := mgr.CreateWithID(ctx, "conv-1", "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("CreateWithID: %v", err)
	}
	if again.ID != first.ID || again.CreatedAt.UnixNano() != first.CreatedAt.UnixNano() {
		t.Error("existing conversation not returned for same user")
	}

	// A different user asking for the same ID gets a fresh one.
	other, err := mgr.CreateWithID(ctx, "conv-1", "tenant-1", "user-2", nil)
	if err != nil {
		t.Fatalf("CreateWithID: %v", err)
	}
	if other.ID == "conv-1" {
		t.Error("conversation ID reused across users")
	}
}

func TestAddMessageTrimsHistory(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	conv, err := mgr.Create(ctx, "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < maxHistory+10; i++ {
		err := mgr.AddMessage(ctx, "tenant-1", conv.ID, Message{
			Role:    "user",
			Content: fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	got, err := mgr.Get(ctx, "tenant-1", conv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.History) != maxHistory {
		t.Errorf("expected history capped at %d, got %d", maxHistory, len(got.History))
	}
	if got.History[len(got.History)-1].Content != fmt.Sprintf("message %d", maxHistory+9) {
		t.Errorf("newest message lost: %q", got.History[len(got.History)-1].Content)
	}
	if got.History[0].Content != "message 10" {
		t.Errorf("oldest retained message wrong: %q", got.History[0].Content)
	}
}

func TestExpiredConversationIsGone(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	conv, err := mgr.Create(ctx, "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conv.ExpiresAt = time.Now().Add(-time.Minute)
	mgr.mu.Lock()
	mgr.local[mgr.key("tenant-1", conv.ID)] = conv
	mgr.mu.Unlock()

	if _, err := mgr.Get(ctx, "tenant-1", conv.ID); !errors.Is(err, ErrConversationExpired) {
		t.Errorf("expected expired error, got %v", err)
	}
}

func TestRecentHistory(t *testing.T) {
	conv := &Conversation{}
	for i := 0; i < 8; i++ {
		conv.History = append(conv.History, Message{Content: fmt.Sprintf("m%d", i)})
	}

	recent := conv.RecentHistory(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(recent))
	}
	if recent[0].Content != "m3" || recent[4].Content != "m7" {
		t.Errorf("unexpected window: %q .. %q", recent[0].Content, recent[4].Content)
	}
}

func TestListForTenant(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, "tenant-1", "user-1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Create(ctx, "tenant-1", "user-2", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Create(ctx, "tenant-2", "user-3", nil); err != nil {
		t.Fatal(err)
	}

	convs, err := mgr.ListForTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("ListForTenant: %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(convs))
	}
	for _, c := range convs {
		if c.TenantID != "tenant-1" {
			t.Errorf("foreign tenant conversation listed: %+v", c)
		}
	}
}

func TestDelete(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	conv, err := mgr.Create(ctx, "tenant-1", "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Delete(ctx, "tenant-1", conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mgr.Get(ctx, "tenant-1", conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}
