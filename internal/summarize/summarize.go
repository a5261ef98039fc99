// Package summarize abstracts transcript summarization.
package summarize

import (
	"context"
	"fmt"
	"strings"
)

// Terminal summary values stored when no model-generated summary is possible.
// Consumers distinguish these sentinels from real summaries by equality.
const (
	TooShortSentinel = "Recording too short to generate a meaningful summary."
	FailedSentinel   = "Error: Summary generation failed."
)

// IsSentinel reports whether a stored summary is a terminal error value
// rather than generated markdown.
func IsSentinel(summary string) bool {
	return summary == TooShortSentinel || summary == FailedSentinel
}

// Config carries the per-session summarization settings.
type Config struct {
	Length         string // auto, quarter, half, one_page, two_page
	LanguageMode   string // auto, fixed, custom
	CustomLanguage string
	Context        string // free-text background supplied by the user
}

// Summarizer turns a full transcript into a markdown summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, cfg Config) (string, error)
}

var lengthInstructions = map[string]string{
	"auto":     "Choose a summary length appropriate for the amount of content.",
	"quarter":  "Keep the summary to roughly a quarter of a page.",
	"half":     "Keep the summary to roughly half a page.",
	"one_page": "Produce a summary of roughly one page.",
	"two_page": "Produce a detailed summary of up to two pages.",
}

// buildSystemPrompt assembles the instruction block for the summary model.
func buildSystemPrompt(cfg Config) string {
	var b strings.Builder
	b.WriteString("You are a meeting-summary generator. Summarise the transcript into well-structured markdown with headings for key discussion points, decisions made and action items. Omit sections with no corresponding content. Return ONLY the generated markdown.\n")

	if instr, ok := lengthInstructions[cfg.Length]; ok {
		b.WriteString(instr)
		b.WriteString("\n")
	}

	switch cfg.LanguageMode {
	case "fixed":
		b.WriteString("Write the summary in English regardless of the transcript language.\n")
	case "custom":
		if cfg.CustomLanguage != "" {
			fmt.Fprintf(&b, "Write the summary in %s.\n", cfg.CustomLanguage)
		}
	default:
		b.WriteString("Write the summary in the dominant language of the transcript.\n")
	}

	if cfg.Context != "" {
		fmt.Fprintf(&b, "Background provided by the user: %s\n", cfg.Context)
	}
	return b.String()
}
