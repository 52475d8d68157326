package commentary

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Record is one variance line item.
type Record struct {
	KPI        string   `json:"kpi"`
	Drivers    []string `json:"drivers"`
	Comparison string   `json:"comparison"`
	Impact     string   `json:"impact"`
}

// Commentary is the structured result of an extraction. Raw is the array
// text exactly as the model returned it; Records is its decoded view.
type Commentary struct {
	Raw     json.RawMessage
	Records []Record
}

// Parse validates a generated payload. An empty payload is read as "[]".
func Parse(payload string) (*Commentary, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		trimmed = "[]"
	}

	var top any
	if err := json.Unmarshal([]byte(trimmed), &top); err != nil {
		return nil, &FormatError{Reason: "model returned invalid JSON: " + err.Error()}
	}
	elems, ok := top.([]any)
	if !ok {
		return nil, &FormatError{Reason: "model returned non-array"}
	}
	for _, el := range elems {
		if _, ok := el.(map[string]any); !ok {
			return nil, &FormatError{Reason: "model returned non-object record"}
		}
	}

	records := []Record{}
	if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
		return nil, &FormatError{Reason: "model returned malformed records: " + err.Error()}
	}
	return &Commentary{Raw: json.RawMessage(trimmed), Records: records}, nil
}

// Len returns the number of records.
func (c *Commentary) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Indented serializes the commentary with two-space indentation.
func (c *Commentary) Indented() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.raw(), "", "  "); err != nil {
		return string(c.raw())
	}
	return buf.String()
}

func (c *Commentary) raw() []byte {
	if len(c.Raw) == 0 {
		return []byte("[]")
	}
	return c.Raw
}

// MarshalJSON emits the stored array unchanged.
func (c *Commentary) MarshalJSON() ([]byte, error) {
	return c.raw(), nil
}

// UnmarshalJSON accepts the same shapes Parse does.
func (c *Commentary) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
