package llm

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/extract.txt
	extractPrompt string
	//go:embed prompts/query.txt
	queryPrompt string
)

// ExtractionPrompt embeds the transcript verbatim into the extraction instruction.
func ExtractionPrompt(transcript string) string {
	return strings.TrimSpace(strings.Replace(extractPrompt, "{{TRANSCRIPT}}", transcript, 1))
}

// QueryPrompt embeds the serialized commentary and the literal query.
func QueryPrompt(structured, query string) string {
	replacer := strings.NewReplacer(
		"{{COMMENTARY_JSON}}", structured,
		"{{QUERY}}", query,
	)
	return strings.TrimSpace(replacer.Replace(queryPrompt))
}
