package prompts

import (
	"context"
	"testing"
)

func TestHistoryKeepsNewestMessagesThatFit(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Content: "aaaaaaaaaa"},
		{Role: RoleAssistant, Content: "bbbbb"},
		{Role: RoleUser, Content: "ccc"},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 9)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 2 {
		t.Fatalf("kept %d messages, want 2", len(r.Output))
	}
	if r.Output[0].Content != "bbbbb" || r.Output[1].Content != "ccc" {
		t.Fatalf("unexpected output %+v", r.Output)
	}
	if r.Length != 8 {
		t.Fatalf("length = %d, want 8", r.Length)
	}
}

func TestHistoryStopsAtFirstRejection(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Content: "x"},
		{Role: RoleUser, Content: "this one is far too long"},
		{Role: RoleUser, Content: "ok"},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 10)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// The oldest "x" fits on its own but the walk stops at the rejected
	// middle message.
	if len(r.Output) != 1 || r.Output[0].Content != "ok" {
		t.Fatalf("unexpected output %+v", r.Output)
	}
}

func TestHistoryRequiredKeepsNewestEvenOverBudget(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Content: "this message exceeds the budget"},
	})
	s := NewConversationHistorySection("conversation.history", WithRequired(true))

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 1 {
		t.Fatalf("required section must keep the newest message")
	}
	if !r.TooLong {
		t.Fatal("render over budget must report too long")
	}
}

func TestHistoryOptionalEmptyWhenNothingFits(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Content: "this message exceeds the budget"},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 0 || r.Length != 0 {
		t.Fatalf("expected empty render, got %+v", r)
	}
}

func TestHistoryTextModePrefixesSpeakers(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsText(context.Background(), mem, noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "user: hi\nassistant: hello"
	if r.Output != want {
		t.Fatalf("output = %q, want %q", r.Output, want)
	}
	if r.Length != len(want) {
		t.Fatalf("length = %d, want %d", r.Length, len(want))
	}
}

func TestHistoryChargesImageEstimate(t *testing.T) {
	mem := newTestMemory()
	mem.Set("conversation.history", []Message{
		{Role: RoleUser, Parts: []ContentPart{
			{Type: PartTypeText, Text: "see"},
			{Type: PartTypeImageURL, ImageURL: "https://example.com/a.png"},
		}},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 200)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Length != 3+imageTokenEstimate {
		t.Fatalf("length = %d, want %d", r.Length, 3+imageTokenEstimate)
	}
}

func TestHistorySurvivesJSONRoundTrip(t *testing.T) {
	mem := newTestMemory()
	// The state store persists history as generic JSON values.
	mem.Set("conversation.history", []any{
		map[string]any{"role": "user", "content": "hi"},
		map[string]any{"role": "assistant", "content": "hello"},
	})
	s := NewConversationHistorySection("conversation.history")

	r, err := s.RenderAsMessages(context.Background(), mem, noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 2 || r.Output[1].Content != "hello" {
		t.Fatalf("unexpected output %+v", r.Output)
	}
}
