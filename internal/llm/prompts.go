package llm

import (
	_ "embed"
	"strings"
)

//go:embed prompts/analysis.txt
var analysisTemplate string

// MaxPromptTextChars bounds the document text sent to a provider.
const MaxPromptTextChars = 30000

// SystemPrompt is sent as the system message by chat-style providers.
const SystemPrompt = "You are a financial document analyst. Respond with a single JSON object only. No markdown."

// FixJSONSystemPrompt asks the model to repair its previous reply.
const FixJSONSystemPrompt = "You are a JSON repair tool. Return only valid JSON that matches the requested schema exactly."

// TruncateText cuts text to MaxPromptTextChars characters and appends "..." when it was longer.
func TruncateText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxPromptTextChars {
		return text
	}
	return string(runes[:MaxPromptTextChars]) + "..."
}

// BuildPrompt renders the analysis prompt for the (truncated) document text.
func BuildPrompt(text string) string {
	return strings.Replace(analysisTemplate, "{{TEXT}}", TruncateText(text), 1)
}

// BuildFixPrompt asks for the previous reply to be rewritten as valid JSON.
func BuildFixPrompt(raw string) string {
	schema := analysisTemplate[strings.Index(analysisTemplate, "Please provide"):]
	return "The following reply was not valid JSON:\n\n" + raw + "\n\n" + schema
}
