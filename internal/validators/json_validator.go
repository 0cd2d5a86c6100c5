package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// placeholderPattern quotes bare <placeholder> values models sometimes leave
// in JSON they were asked to fill in.
var placeholderPattern = regexp.MustCompile(`([:\[,]\s*)<([^<>"]*)>`)

// JSONResponseValidator extracts JSON objects from a model response and
// optionally validates them against a JSON schema. With a schema, objects are
// checked newest first and the first valid one wins. Without a schema, the
// last object in the response is returned.
type JSONResponseValidator struct {
	schema        map[string]any
	missingJSON   string
	errorFeedback string
}

// NewJSONResponseValidator creates a validator for schema, which may be nil
// to accept any JSON object.
func NewJSONResponseValidator(schema map[string]any, missingJSONFeedback string) *JSONResponseValidator {
	if missingJSONFeedback == "" {
		missingJSONFeedback = "No valid JSON objects were found in the response. Return a valid JSON object."
	}
	return &JSONResponseValidator{
		schema:        schema,
		missingJSON:   missingJSONFeedback,
		errorFeedback: "The JSON returned had errors. Apply these fixes:",
	}
}

// SetErrorFeedback overrides the prefix prepended to schema error feedback.
func (v *JSONResponseValidator) SetErrorFeedback(feedback string) {
	v.errorFeedback = feedback
}

func (v *JSONResponseValidator) ValidateResponse(_ context.Context, _ state.Memory, _ tokens.Tokenizer, response models.PromptResponse, _ int) (Validation, error) {
	text := ""
	if response.Message != nil {
		text = response.Message.Content
	}

	objects := ExtractAllObjects(text)
	if len(objects) == 0 {
		return Invalid(v.missingJSON), nil
	}

	if v.schema == nil {
		return Valid(objects[len(objects)-1]), nil
	}

	schemaLoader := gojsonschema.NewGoLoader(v.schema)
	var errorText string
	for i := len(objects) - 1; i >= 0; i-- {
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(objects[i]))
		if err != nil {
			return Validation{}, fmt.Errorf("failed to validate response schema: %w", err)
		}
		if result.Valid() {
			return Valid(objects[i]), nil
		}
		if errorText == "" {
			var issues []string
			for _, desc := range result.Errors() {
				issues = append(issues, desc.String())
			}
			errorText = strings.Join(issues, " ")
		}
	}
	return Invalid(v.errorFeedback + " " + errorText), nil
}

// ExtractAllObjects pulls every JSON object out of free-form model text. Each
// line is tried on its own; only when no line parses is the whole text
// scanned once for balanced top-level objects. Bare <placeholder> tokens are
// quoted before parsing and empty objects are skipped.
func ExtractAllObjects(text string) []map[string]any {
	var objects []map[string]any
	seen := make(map[string]struct{})

	add := func(obj map[string]any, raw string) {
		if len(obj) == 0 {
			return
		}
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		objects = append(objects, obj)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		if obj, ok := parseObject(line); ok {
			add(obj, canonical(obj))
		}
	}
	if len(objects) > 0 {
		return objects
	}

	for _, candidate := range scanBalancedObjects(text) {
		if obj, ok := parseObject(candidate); ok {
			add(obj, canonical(obj))
		}
	}
	return objects
}

func canonical(obj map[string]any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return string(data)
}

func parseObject(text string) (map[string]any, bool) {
	text = placeholderPattern.ReplaceAllString(text, `$1"<$2>"`)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// scanBalancedObjects walks the text tracking brace depth, honoring strings
// and escapes, and returns every balanced top-level {...} span.
func scanBalancedObjects(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
