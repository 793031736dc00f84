package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRunReportsSetupErrors(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "")

	err := run(filepath.Join(t.TempDir(), "missing.json"), "find it", 1)
	if err == nil || !strings.HasPrefix(err.Error(), "llm:") {
		t.Fatalf("got %v, want llm setup error", err)
	}
}
