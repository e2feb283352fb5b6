package ui

import (
	"strings"
	"testing"
)

// Rendering must never swallow the message, whatever color profile the
// environment resolves to.
func TestRenderersPreserveText(t *testing.T) {
	renderers := map[string]func(string) string{
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"muted":  RenderMuted,
		"header": RenderHeader,
	}
	for name, render := range renderers {
		t.Run(name, func(t *testing.T) {
			got := render("marketplace ready")
			if !strings.Contains(got, "marketplace ready") {
				t.Errorf("render(%q) = %q, text lost", "marketplace ready", got)
			}
		})
	}
}

func TestRenderEmptyString(t *testing.T) {
	if got := RenderPass(""); strings.ContainsAny(got, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("RenderPass(\"\") = %q, expected no visible text", got)
	}
}
