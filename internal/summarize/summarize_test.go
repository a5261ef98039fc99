package summarize

import (
	"strings"
	"testing"
)

func TestIsSentinel(t *testing.T) {
	if !IsSentinel(TooShortSentinel) {
		t.Error("Expected TooShortSentinel to be a sentinel")
	}
	if !IsSentinel(FailedSentinel) {
		t.Error("Expected FailedSentinel to be a sentinel")
	}
	if IsSentinel("## Summary\nAll good.") {
		t.Error("Expected generated markdown not to be a sentinel")
	}
	if IsSentinel("") {
		t.Error("Expected empty string not to be a sentinel")
	}
}

func TestBuildSystemPrompt_Length(t *testing.T) {
	prompt := buildSystemPrompt(Config{Length: "one_page", LanguageMode: "auto"})
	if !strings.Contains(prompt, "roughly one page") {
		t.Errorf("Expected one-page instruction, got:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_CustomLanguage(t *testing.T) {
	prompt := buildSystemPrompt(Config{LanguageMode: "custom", CustomLanguage: "French"})
	if !strings.Contains(prompt, "Write the summary in French.") {
		t.Errorf("Expected custom-language instruction, got:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_Context(t *testing.T) {
	prompt := buildSystemPrompt(Config{Context: "Quarterly budget review"})
	if !strings.Contains(prompt, "Quarterly budget review") {
		t.Errorf("Expected user context in prompt, got:\n%s", prompt)
	}
}
