// Package safety inspects inbound teacher/user text before the simulation
// runs. It classifies text as blocked, flagged, or clean and returns a
// normalized copy. The orchestrator honors only the verdict fields.
package safety

import (
	"regexp"
	"strings"
)

// Verdict is the result of inspecting one message.
type Verdict struct {
	CleanedText string   `json:"cleanedText"`
	Flags       []string `json:"flags,omitempty"`
	Blocked     bool     `json:"blocked"`
	Reason      string   `json:"reason,omitempty"`
}

type blockRule struct {
	name    string
	pattern *regexp.Regexp
	reason  string
}

type flagRule struct {
	name    string
	pattern *regexp.Regexp
}

// Pre-compiled policy tables. Block rules stop the turn outright; flag rules
// let it through with a notice.
var blockRules = []blockRule{
	{
		name:    "markup_injection",
		pattern: regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`),
		reason:  "Message rejected: embedded markup is not allowed in classroom input.",
	},
	{
		name:    "prompt_injection",
		pattern: regexp.MustCompile(`(?i)\b(ignore|disregard)\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?)\b`),
		reason:  "Message rejected: instruction override attempts are not allowed.",
	},
	{
		name:    "violent_threat",
		pattern: regexp.MustCompile(`(?i)\b(kill|hurt|attack)\s+(you|him|her|them|the\s+class)\b`),
		reason:  "Message rejected: threatening language is not allowed in the classroom.",
	},
}

var flagRules = []flagRule{
	{name: "profanity", pattern: regexp.MustCompile(`(?i)\b(damn|hell|crap|stupid|idiot)\b`)},
	{name: "contact_info", pattern: regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.]+\b|\b\+?\d[\d\s-]{8,}\d\b`)},
	{name: "shouting", pattern: regexp.MustCompile(`[A-Z]{12,}`)},
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
var repeatedWhitespace = regexp.MustCompile(`\s{2,}`)

// Filter classifies inbound text against the fixed policy tables.
type Filter struct{}

// NewFilter creates a safety filter with the built-in policy.
func NewFilter() *Filter {
	return &Filter{}
}

// Inspect classifies the raw text and returns the verdict.
func (f *Filter) Inspect(raw string) Verdict {
	cleaned := controlChars.ReplaceAllString(raw, "")
	cleaned = repeatedWhitespace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	for _, r := range blockRules {
		if r.pattern.MatchString(raw) {
			return Verdict{
				CleanedText: cleaned,
				Flags:       []string{r.name},
				Blocked:     true,
				Reason:      r.reason,
			}
		}
	}

	var flags []string
	for _, r := range flagRules {
		if r.pattern.MatchString(raw) {
			flags = append(flags, r.name)
		}
	}

	return Verdict{CleanedText: cleaned, Flags: flags}
}
