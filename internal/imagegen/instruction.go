package imagegen

import "strings"

// BuildInstruction picks the prompt for the request form. Pair shots fall back
// to the single prompt with a note about the second photo when no pair
// prompt is configured.
func BuildInstruction(req GenerateRequest, prompts Prompts) string {
	single := strings.TrimSpace(prompts.Single)
	if !req.IsPair() {
		return single
	}
	if pair := strings.TrimSpace(prompts.Pair); pair != "" {
		return pair
	}
	parts := []string{}
	if single != "" {
		parts = append(parts, single)
	}
	parts = append(parts, "Two photos are attached; both people must appear together in the same shot.")
	return strings.Join(parts, " ")
}
