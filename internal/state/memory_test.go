package state

import "testing"

func TestSplitPathScopes(t *testing.T) {
	cases := []struct {
		path  string
		scope string
		name  string
	}{
		{"conversation.history", ScopeConversation, "history"},
		{"user.name", ScopeUser, "name"},
		{"temp.input", ScopeTemp, "input"},
		{"input", ScopeTemp, "input"},
		{"other.value", ScopeTemp, "other.value"},
	}
	for _, c := range cases {
		scope, name := SplitPath(c.path)
		if scope != c.scope || name != c.name {
			t.Fatalf("SplitPath(%q) = (%q, %q), want (%q, %q)", c.path, scope, name, c.scope, c.name)
		}
	}
}

func TestTurnStateDefaultsToTemp(t *testing.T) {
	ts := NewTurnState()
	ts.Set("input", "hello")
	if got := ts.Get("temp.input"); got != "hello" {
		t.Fatalf("expected unscoped set to land in temp, got %v", got)
	}
	if !ts.Has("input") {
		t.Fatalf("expected Has to resolve unscoped path")
	}
	ts.Delete("temp.input")
	if ts.Has("input") {
		t.Fatalf("expected delete to remove value")
	}
}

func TestForkCopyOnWrite(t *testing.T) {
	base := NewTurnState()
	base.Set("conversation.topic", "weather")
	base.Set("user.name", "pat")

	fork := NewFork(base)
	if got := fork.Get("conversation.topic"); got != "weather" {
		t.Fatalf("expected fork read-through, got %v", got)
	}

	fork.Set("conversation.topic", "news")
	if got := fork.Get("conversation.topic"); got != "news" {
		t.Fatalf("expected overlay value, got %v", got)
	}
	if got := base.Get("conversation.topic"); got != "weather" {
		t.Fatalf("fork write mutated base: %v", got)
	}

	fork.Delete("user.name")
	if fork.Has("user.name") {
		t.Fatalf("expected delete to shadow base value")
	}
	if !base.Has("user.name") {
		t.Fatalf("fork delete mutated base")
	}

	fork.Set("user.name", "sam")
	if got := fork.Get("user.name"); got != "sam" {
		t.Fatalf("expected set after delete to restore visibility, got %v", got)
	}
}

func TestForkOfFork(t *testing.T) {
	base := NewTurnState()
	base.Set("conversation.history", []string{"a"})

	inner := NewFork(base)
	inner.Set("conversation.history", []string{"a", "b"})

	outer := NewFork(inner)
	got, ok := outer.Get("conversation.history").([]string)
	if !ok || len(got) != 2 {
		t.Fatalf("expected nested fork read-through, got %v", outer.Get("conversation.history"))
	}
}
