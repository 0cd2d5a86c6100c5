package prompts

import (
	"context"
	"testing"
)

func TestMessageText(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{"plain content", Message{Role: RoleUser, Content: "hello"}, "hello"},
		{
			"multimodal keeps text parts",
			Message{Role: RoleUser, Parts: []ContentPart{
				{Type: PartTypeText, Text: "look at"},
				{Type: PartTypeImageURL, ImageURL: "https://example.com/cat.png"},
				{Type: PartTypeText, Text: "this"},
			}},
			"look at this",
		},
		{
			"function call renders as JSON",
			Message{Role: RoleAssistant, FunctionCall: &FunctionCall{Name: "lookup", Arguments: `{"q":"cats"}`}},
			`{"name":"lookup","arguments":"{\"q\":\"cats\"}"}`,
		},
		{
			"function result",
			Message{Role: RoleFunction, Name: "lookup", Content: "42"},
			"lookup returned 42",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MessageText(tc.msg); got != tc.want {
				t.Fatalf("MessageText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTextSectionRendersSingleMessage(t *testing.T) {
	s := NewTextSection("Hello there", RoleSystem)
	r, err := s.RenderAsMessages(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 1 || r.Output[0].Content != "Hello there" {
		t.Fatalf("unexpected output %+v", r.Output)
	}
	if r.Length != len("Hello there") {
		t.Fatalf("length = %d, want %d", r.Length, len("Hello there"))
	}
	if r.TooLong {
		t.Fatal("section should fit")
	}
}

// doubleTokenizer produces two tokens per byte.
type doubleTokenizer struct{}

func (doubleTokenizer) Encode(text string) []int { return make([]int, 2*len(text)) }
func (doubleTokenizer) Decode(toks []int) string { return "" }

func TestTextSectionLengthTracksTokenizer(t *testing.T) {
	s := NewTextSection("hello", RoleSystem)

	r, err := s.RenderAsMessages(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Length != 5 {
		t.Fatalf("length = %d, want 5", r.Length)
	}

	// The same section rendered with another tokenizer reports that
	// tokenizer's length, not a cached one.
	r, err = s.RenderAsMessages(context.Background(), newTestMemory(), noFunctions{}, doubleTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Length != 10 {
		t.Fatalf("length = %d, want 10", r.Length)
	}
}

func TestTextSectionEmptyTextRendersNothing(t *testing.T) {
	s := NewTextSection("", RoleSystem)
	r, err := s.RenderAsMessages(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 0 || r.Length != 0 {
		t.Fatalf("expected empty render, got %+v", r)
	}
}

func TestFixedBudgetTruncatesText(t *testing.T) {
	s := NewTextSection("abcdefghij", RoleSystem, WithTokens(4))
	r, err := s.RenderAsText(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Output != "abcd" {
		t.Fatalf("output = %q, want %q", r.Output, "abcd")
	}
	if r.Length != 4 {
		t.Fatalf("length = %d, want 4", r.Length)
	}

	// Truncating an already-fitting render changes nothing.
	short := NewTextSection("ab", RoleSystem, WithTokens(4))
	r2, err := short.RenderAsText(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r2.Output != "ab" || r2.Length != 2 {
		t.Fatalf("unexpected render %+v", r2)
	}
}

func TestFixedBudgetTruncatesMessages(t *testing.T) {
	s := NewTextSection("abcdefghij", RoleSystem, WithTokens(6))
	r, err := s.RenderAsMessages(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(r.Output) != 1 {
		t.Fatalf("expected one message, got %d", len(r.Output))
	}
	if r.Output[0].Content != "abcdef" {
		t.Fatalf("content = %q, want %q", r.Output[0].Content, "abcdef")
	}
	if r.Length != 6 {
		t.Fatalf("length = %d, want 6", r.Length)
	}
}

func TestTextPrefixCountsOnce(t *testing.T) {
	s := NewTextSection("hi", RoleUser, WithTextPrefix("user: "))
	r, err := s.RenderAsText(context.Background(), newTestMemory(), noFunctions{}, runeTokenizer{}, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Output != "user: hi" {
		t.Fatalf("output = %q", r.Output)
	}
	if r.Length != len("user: hi") {
		t.Fatalf("length = %d, want %d", r.Length, len("user: hi"))
	}
}
