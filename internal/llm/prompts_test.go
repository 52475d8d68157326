package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractionPromptEmbedsTranscriptVerbatim(t *testing.T) {
	transcript := "Revenue grew 5% vs budget due to volume.\n  {{QUERY}} stays literal"
	prompt := ExtractionPrompt(transcript)
	if !strings.Contains(prompt, transcript) {
		t.Fatalf("expected transcript verbatim in prompt, got %q", prompt)
	}
	if !strings.HasPrefix(prompt, "Analyze the following business commentary") {
		t.Fatalf("unexpected prompt prefix: %q", prompt[:40])
	}
	for _, field := range []string{`"kpi"`, `"drivers"`, `"comparison"`, `"impact"`} {
		if !strings.Contains(prompt, field) {
			t.Fatalf("expected field %s in prompt", field)
		}
	}
}

func TestQueryPromptEmbedsCommentaryAndQuery(t *testing.T) {
	structured := "[\n  {\n    \"kpi\": \"Revenue\"\n  }\n]"
	prompt := QueryPrompt(structured, "Why did revenue grow?")
	if !strings.Contains(prompt, structured) {
		t.Fatalf("expected structured commentary in prompt")
	}
	if !strings.Contains(prompt, `User Query: "Why did revenue grow?"`) {
		t.Fatalf("expected quoted query in prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "not available") {
		t.Fatalf("expected unavailable-information instruction")
	}
}

func TestCommentarySchemaShape(t *testing.T) {
	raw, err := json.Marshal(CommentarySchema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if decoded["type"] != "ARRAY" {
		t.Fatalf("expected ARRAY root, got %v", decoded["type"])
	}
	items := decoded["items"].(map[string]any)
	props := items["properties"].(map[string]any)
	if len(props) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(props))
	}
	drivers := props["drivers"].(map[string]any)
	if drivers["type"] != "ARRAY" {
		t.Fatalf("expected drivers to be ARRAY, got %v", drivers["type"])
	}
	ordering := items["propertyOrdering"].([]any)
	if ordering[0] != "kpi" || ordering[3] != "impact" {
		t.Fatalf("unexpected property ordering: %v", ordering)
	}
}

func TestNewAPIErrorFallsBackToGenericMessage(t *testing.T) {
	err := NewAPIError(500, "  ")
	if err.Message != GenericErrorMessage {
		t.Fatalf("expected generic message, got %q", err.Message)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status in error string, got %q", err.Error())
	}
}
