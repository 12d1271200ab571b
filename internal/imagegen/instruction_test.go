package imagegen

import (
	"strings"
	"testing"
)

func TestBuildInstruction(t *testing.T) {
	prompts := Prompts{Single: "single prompt", Pair: "pair prompt"}

	if got := BuildInstruction(GenerateRequest{Image: "data:image/png;base64,AA"}, prompts); got != "single prompt" {
		t.Fatalf("single instruction mismatch: %q", got)
	}
	if got := BuildInstruction(GenerateRequest{ImageA: "a", ImageB: "b"}, prompts); got != "pair prompt" {
		t.Fatalf("pair instruction mismatch: %q", got)
	}
}

func TestBuildInstructionPairFallback(t *testing.T) {
	got := BuildInstruction(GenerateRequest{ImageA: "a", ImageB: "b"}, Prompts{Single: " arena selfie "})

	checks := []string{
		"arena selfie",
		"Two photos are attached",
	}
	for _, expect := range checks {
		if !strings.Contains(got, expect) {
			t.Fatalf("instruction missing %q: %s", expect, got)
		}
	}
	if strings.HasPrefix(got, " ") {
		t.Fatalf("instruction should be trimmed: %q", got)
	}
}
