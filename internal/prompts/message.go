package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
	RoleTool      = "tool"
)

// Content part types for multimodal messages.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// FunctionCall describes a function the model asked to invoke. Arguments is a
// string-encoded JSON object.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ActionCall is a tool/action invocation returned by the model.
type ActionCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message is a single chat message produced by rendering or returned by a
// model. Value carries the validated, typed form of Content after a response
// validator accepts it; it is never serialized.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content,omitempty"`
	Parts        []ContentPart `json:"parts,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ActionCalls  []ActionCall  `json:"action_calls,omitempty"`
	ActionCallID string        `json:"action_call_id,omitempty"`
	Value        any           `json:"-"`
}

// ChatCompletionAction describes an action/tool the model may invoke.
// Parameters is a JSON schema for the action's arguments.
type ChatCompletionAction struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// MessageText flattens a message to plain text. Multimodal bodies contribute
// only their text parts, function calls render as their JSON shape, and
// named function results render as "name returned content".
func MessageText(m Message) string {
	if len(m.Parts) > 0 {
		var texts []string
		for _, p := range m.Parts {
			if p.Type == PartTypeText && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, " ")
	}
	if m.FunctionCall != nil {
		data, err := json.Marshal(m.FunctionCall)
		if err != nil {
			return ""
		}
		return string(data)
	}
	if m.Name != "" {
		return fmt.Sprintf("%s returned %s", m.Name, m.Content)
	}
	return m.Content
}

// ToString renders an arbitrary memory value as prompt text.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// MessagesValue coerces a memory value into a message list. Values that went
// through a JSON round trip (e.g. the SQLite state store) come back as
// []any of maps and are re-decoded.
func MessagesValue(v any) []Message {
	switch t := v.(type) {
	case nil:
		return nil
	case []Message:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil
		}
		return msgs
	}
}
