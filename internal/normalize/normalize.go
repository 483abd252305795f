// Package normalize turns an opaque agent run outcome into a fully populated
// Medicine record. JSON recovery is best-effort: decode failures select the
// next candidate rather than surfacing as errors.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xoity/medicinedb/internal/agent"
	"github.com/xoity/medicinedb/models"
)

// SideEffectsAdvisory is stored when the agent supplies no side effect data.
const SideEffectsAdvisory = "Consult your pharmacist or the package insert for side effects."

// jsonObject matches the first brace-delimited block, greedily, across
// newlines. Good enough for LLM output that wraps JSON in prose.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Normalizer stamps date_added with Now at normalization time. The zero value
// uses the wall clock.
type Normalizer struct {
	Now func() time.Time
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Today returns the normalizer's current date in the stored YYYY-MM-DD form.
func (n Normalizer) Today() string {
	return n.now().Format("2006-01-02")
}

// FromOutcome recovers a structured Medicine from the run outcome. The final
// text is always tried first; the step trail is scanned only when the final
// text yields no parseable JSON. Returns false when neither path recovers a
// JSON object; the caller should fall back to Narrative, this is not an error.
func (n Normalizer) FromOutcome(out agent.RunOutcome) (models.Medicine, bool) {
	data, ok := extractJSON(out.FinalText)
	if !ok {
		for _, step := range out.Steps {
			text, found := doneText(step)
			if !found {
				continue
			}
			if data, ok = extractJSON(text); ok {
				break
			}
		}
	}
	if !ok {
		return models.Medicine{}, false
	}
	return n.toMedicine(data), true
}

// Narrative locates the agent's free-form answer: the first successful done
// step's text taken verbatim, or the final text when no such step exists.
func Narrative(out agent.RunOutcome) (string, bool) {
	for _, step := range out.Steps {
		if text, ok := doneText(step); ok {
			return text, true
		}
	}
	if out.FinalText != "" {
		return out.FinalText, true
	}
	return "", false
}

// doneText returns the text of a successful "done" action, if the step has one.
func doneText(step agent.StepRecord) (string, bool) {
	if step.ActionOutcome == nil {
		return "", false
	}
	done, ok := step.ActionOutcome["done"].(map[string]interface{})
	if !ok {
		return "", false
	}
	success, _ := done["success"].(bool)
	text, hasText := done["text"].(string)
	if !success || !hasText {
		return "", false
	}
	return text, true
}

// extractJSON finds a brace-delimited substring and parses it. A failed parse
// is reported as absence, never as an error.
func extractJSON(text string) (map[string]interface{}, bool) {
	if text == "" {
		return nil, false
	}
	block := jsonObject.FindString(text)
	if block == "" {
		return nil, false
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(block), &data); err != nil {
		return nil, false
	}
	return data, true
}

// toMedicine maps agent field names onto the Medicine schema and fills every
// field the agent never supplies with its placeholder.
func (n Normalizer) toMedicine(data map[string]interface{}) models.Medicine {
	genericName := stringValue(data["generic_name"])
	drugClass := stringValue(data["drug_class"])

	name := stringValue(data["name"])
	if name == "" {
		name = genericName
	}
	if name == "" {
		name = models.PlaceholderText
	}

	brand := joinValue(data["brand_names"], ", ")
	if brand == "" {
		brand = models.PlaceholderText
	}
	dosage := joinValue(data["dosage_forms"], "; ")
	if dosage == "" {
		dosage = models.PlaceholderText
	}
	category := drugClass
	if category == "" {
		category = models.PlaceholderText
	}

	return models.Medicine{
		Name:        name,
		Brand:       brand,
		Price:       models.PlaceholderPrice,
		Dosage:      dosage,
		Form:        models.PlaceholderText,
		OTC:         false,
		Description: fmt.Sprintf("Generic Name: %s, Drug Class: %s", orPlaceholder(genericName), orPlaceholder(drugClass)),
		SideEffects: SideEffectsAdvisory,
		Category:    category,
		DateAdded:   n.now().Format("2006-01-02"),
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return models.PlaceholderText
	}
	return s
}

// stringValue renders a scalar JSON value as a string; nil becomes empty.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// joinValue joins a JSON list with sep; scalars pass through unchanged.
func joinValue(v interface{}, sep string) string {
	list, ok := v.([]interface{})
	if !ok {
		return stringValue(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s := stringValue(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}
