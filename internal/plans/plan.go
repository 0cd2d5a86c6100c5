// Package plans defines the command list a planner produces for a single
// conversational turn.
package plans

import (
	"encoding/json"
	"fmt"

	"github.com/kayz/loom/internal/prompts"
)

// Command types.
const (
	TypeDo  = "DO"
	TypeSay = "SAY"
)

// TooManyStepsActionName is the DO action emitted when a planner gives up on
// a run that exceeded its step or time limits.
const TooManyStepsActionName = "__too_many_steps__"

// PredictedCommand is either a PredictedDoCommand or a PredictedSayCommand.
type PredictedCommand interface {
	CommandType() string
}

// PredictedDoCommand asks the application to execute a named action.
type PredictedDoCommand struct {
	Type       string         `json:"type"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// ActionID correlates the command with a remote tool call when the plan
	// came from a tools augmentation or an assistants run.
	ActionID string `json:"action_id,omitempty"`
}

func (c PredictedDoCommand) CommandType() string { return TypeDo }

// PredictedSayCommand asks the application to send a response to the user.
type PredictedSayCommand struct {
	Type     string          `json:"type"`
	Response prompts.Message `json:"response"`
}

func (c PredictedSayCommand) CommandType() string { return TypeSay }

// Plan is an ordered list of commands to run for the current turn.
type Plan struct {
	Type     string             `json:"type"`
	Commands []PredictedCommand `json:"commands"`
}

// NewPlan creates a plan over the given commands.
func NewPlan(commands ...PredictedCommand) *Plan {
	return &Plan{Type: "plan", Commands: commands}
}

// NewSay creates a single-command plan that says text.
func NewSay(text string) *Plan {
	return NewPlan(PredictedSayCommand{
		Type:     TypeSay,
		Response: prompts.Message{Role: prompts.RoleAssistant, Content: text},
	})
}

// UnmarshalJSON decodes a plan, dispatching each command on its type field.
// SAY responses may be either a bare string or a full message object.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string            `json:"type"`
		Commands []json.RawMessage `json:"commands"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Type = raw.Type
	p.Commands = nil

	for i, rc := range raw.Commands {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(rc, &head); err != nil {
			return fmt.Errorf("failed to decode command[%d]: %w", i, err)
		}
		switch head.Type {
		case TypeDo:
			var cmd PredictedDoCommand
			if err := json.Unmarshal(rc, &cmd); err != nil {
				return fmt.Errorf("failed to decode command[%d]: %w", i, err)
			}
			p.Commands = append(p.Commands, cmd)
		case TypeSay:
			cmd, err := decodeSay(rc)
			if err != nil {
				return fmt.Errorf("failed to decode command[%d]: %w", i, err)
			}
			p.Commands = append(p.Commands, cmd)
		default:
			return fmt.Errorf("command[%d] has unknown type %q", i, head.Type)
		}
	}
	return nil
}

func decodeSay(data []byte) (PredictedSayCommand, error) {
	var withString struct {
		Type     string `json:"type"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &withString); err == nil {
		return PredictedSayCommand{
			Type:     TypeSay,
			Response: prompts.Message{Role: prompts.RoleAssistant, Content: withString.Response},
		}, nil
	}

	var cmd PredictedSayCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return PredictedSayCommand{}, err
	}
	return cmd, nil
}
