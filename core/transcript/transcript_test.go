package transcript

import (
	"errors"
	"testing"
)

func TestUpdateLastRequiresStreamingMessage(t *testing.T) {
	store := NewStore()

	if err := store.UpdateLast("orphan"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty updating an empty store, got %v", err)
	}

	if err := store.Append(Message{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if err := store.UpdateLast("rewrite"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState updating a closed message, got %v", err)
	}

	if err := store.Append(Message{Role: RoleAssistant, IsStreaming: true}); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if err := store.UpdateLast("Hi"); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if err := store.UpdateLast("Hi there"); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	last, ok := store.Last()
	if !ok || last.Content != "Hi there" {
		t.Fatalf("expected cumulative content %q, got %+v", "Hi there", last)
	}
}

func TestAppendRejectedWhileStreaming(t *testing.T) {
	store := NewStore()

	if err := store.Append(Message{Role: RoleAssistant, IsStreaming: true}); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if err := store.Append(Message{Role: RoleUser, Content: "too early"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState appending past an open message, got %v", err)
	}

	store.Finalize()
	if err := store.Append(Message{Role: RoleUser, Content: "fine now"}); err != nil {
		t.Fatalf("unexpected append error after finalize: %v", err)
	}
}

func TestAtMostOneStreamingMessage(t *testing.T) {
	store := NewStore()

	_ = store.Append(Message{Role: RoleUser, Content: "hello"})
	_ = store.Append(Message{Role: RoleAssistant, IsStreaming: true})
	_ = store.UpdateLast("partial")
	store.Finalize()
	_ = store.Append(Message{Role: RoleUser, Content: "again"})
	_ = store.Append(Message{Role: RoleAssistant, IsStreaming: true})

	streaming := 0
	for _, message := range store.Messages() {
		if message.IsStreaming {
			streaming++
		}
	}
	if streaming != 1 {
		t.Fatalf("expected exactly one streaming message, got %d", streaming)
	}
}

func TestRemoveLastUnwindsPlaceholder(t *testing.T) {
	store := NewStore()

	_ = store.Append(Message{Role: RoleUser, Content: "hello"})
	_ = store.Append(Message{Role: RoleAssistant, IsStreaming: true})
	store.RemoveLast()

	messages := store.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one message after rollback, got %d", len(messages))
	}
	if messages[0].Role != RoleUser || messages[0].Content != "hello" {
		t.Fatalf("expected the user message to survive rollback, got %+v", messages[0])
	}

	store.RemoveLast()
	store.RemoveLast() // removing from an empty store is a no-op
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d messages", store.Len())
	}
}

func TestMessagesIsASnapshot(t *testing.T) {
	store := NewStore()
	_ = store.Append(Message{Role: RoleAssistant, Content: "a", IsStreaming: true})

	snapshot := store.Messages()
	_ = store.UpdateLast("ab")

	if snapshot[0].Content != "a" {
		t.Fatalf("snapshot mutated by later write: %+v", snapshot[0])
	}
}
