package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/tool"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

var at = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func completedCall(id string) *toolcall.Call {
	return toolcall.Restore(toolcall.Snapshot{
		ID:       id,
		ToolName: "agent_list_dir",
		Status:   toolcall.StatusCompleted,
		Result:   &tool.Result{Success: true, Output: "a.txt"},
	})
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *conversation.Message
		ok   bool
	}{
		{"user", conversation.NewUserMessage("m1", "hi", at), true},
		{"assistant with calls", conversation.NewAssistantMessage("m2", "", []*toolcall.Call{completedCall("c1")}, at), true},
		{"tool", conversation.NewToolMessage("m3", "c1", "ok", at), true},
		{"empty id", conversation.NewUserMessage("", "hi", at), false},
		{"tool without call id", conversation.NewToolMessage("m4", "", "ok", at), false},
		{"unknown role", &conversation.Message{ID: "m5", Role: "system"}, false},
		{"user with call id", &conversation.Message{ID: "m6", Role: conversation.RoleUser, ToolCallID: "c1"}, false},
		{"user with calls", &conversation.Message{ID: "m7", Role: conversation.RoleUser, ToolCalls: []*toolcall.Call{completedCall("c2")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, conversation.ErrInvalidMessage) {
				t.Fatalf("Validate() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestThread_AppendAndFind(t *testing.T) {
	t.Parallel()

	th := conversation.NewThread(conversation.ThreadInfo{ID: "t1", SessionID: "s1", CreatedAt: at})
	c1 := completedCall("c1")
	if err := th.Append(conversation.NewUserMessage("m1", "list", at)); err != nil {
		t.Fatal(err)
	}
	if err := th.Append(conversation.NewAssistantMessage("m2", "", []*toolcall.Call{c1}, at)); err != nil {
		t.Fatal(err)
	}
	if err := th.Append(conversation.NewUserMessage("m1", "again", at)); !errors.Is(err, conversation.ErrDuplicateMessage) {
		t.Fatalf("duplicate Append() error = %v, want ErrDuplicateMessage", err)
	}

	if th.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", th.Len())
	}
	got, owner, ok := th.FindCall("c1")
	if !ok || got != c1 || owner.ID != "m2" {
		t.Fatalf("FindCall() = %v, %v, %v", got, owner, ok)
	}
	if _, _, ok := th.FindCall("missing"); ok {
		t.Fatal("FindCall(missing) found a call")
	}
	if th.Last().ID != "m2" {
		t.Fatalf("Last() = %s, want m2", th.Last().ID)
	}
	if len(th.Calls()) != 1 {
		t.Fatalf("Calls() = %d, want 1", len(th.Calls()))
	}
}

func TestThread_RecordsRoundTripThroughStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := conversation.NewMemoryStore()
	info := conversation.ThreadInfo{ID: "t1", SessionID: "s1", CreatedAt: at}
	th := conversation.NewThread(info)
	_ = th.Append(conversation.NewUserMessage("m1", "list", at))
	_ = th.Append(conversation.NewAssistantMessage("m2", "", []*toolcall.Call{completedCall("c1")}, at))

	if err := conversation.Save(ctx, store, th); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	// Saving twice must not duplicate messages.
	if err := conversation.Save(ctx, store, th); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	gotInfo, recs, err := store.LoadThread(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadThread() unexpected error: %v", err)
	}
	if gotInfo != info {
		t.Fatalf("info = %+v, want %+v", gotInfo, info)
	}
	loaded, errs := conversation.Load(gotInfo, recs)
	if len(errs) != 0 {
		t.Fatalf("Load() errors: %v", errs)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", loaded.Len())
	}
	c, _, ok := loaded.FindCall("c1")
	if !ok || c.Status() != toolcall.StatusCompleted || c.Snapshot().Content() != "a.txt" {
		t.Fatalf("restored call = %+v", c)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := conversation.NewMemoryStore()

	if _, _, err := store.LoadThread(ctx, "nope"); !errors.Is(err, conversation.ErrThreadNotFound) {
		t.Fatalf("LoadThread() error = %v, want ErrThreadNotFound", err)
	}
	if err := store.SaveMessage(ctx, "nope", conversation.Record{ID: "m"}); !errors.Is(err, conversation.ErrThreadNotFound) {
		t.Fatalf("SaveMessage() error = %v, want ErrThreadNotFound", err)
	}

	_ = store.SaveThread(ctx, conversation.ThreadInfo{ID: "b", SessionID: "s1", CreatedAt: at.Add(time.Minute)})
	_ = store.SaveThread(ctx, conversation.ThreadInfo{ID: "a", SessionID: "s1", CreatedAt: at})
	_ = store.SaveThread(ctx, conversation.ThreadInfo{ID: "c", SessionID: "s2", CreatedAt: at})

	threads, err := store.ListThreads(ctx, "s1")
	if err != nil {
		t.Fatalf("ListThreads() unexpected error: %v", err)
	}
	if len(threads) != 2 || threads[0].ID != "a" || threads[1].ID != "b" {
		t.Fatalf("ListThreads() = %+v, want [a b]", threads)
	}

	_ = store.SaveMessage(ctx, "a", conversation.Record{ID: "m1", Role: conversation.RoleUser, Content: "v1"})
	_ = store.SaveMessage(ctx, "a", conversation.Record{ID: "m2", Role: conversation.RoleUser, Content: "x"})
	_ = store.SaveMessage(ctx, "a", conversation.Record{ID: "m1", Role: conversation.RoleUser, Content: "v2"})
	_, recs, _ := store.LoadThread(ctx, "a")
	if len(recs) != 2 || recs[0].Content != "v2" || recs[1].ID != "m2" {
		t.Fatalf("records = %+v, want m1(v2), m2", recs)
	}

	if err := store.DeleteThread(ctx, "a"); err != nil {
		t.Fatalf("DeleteThread() unexpected error: %v", err)
	}
	if _, _, err := store.LoadThread(ctx, "a"); !errors.Is(err, conversation.ErrThreadNotFound) {
		t.Fatalf("LoadThread() after delete error = %v", err)
	}
}
