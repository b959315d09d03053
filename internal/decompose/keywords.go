package decompose

import (
	"strings"
	"unicode"
)

// DefaultCapability is inferred when no keyword matches.
const DefaultCapability = "code"

// CapabilityKeywords maps a capability tag to the words that imply it.
// A keyword matches any word in the text that starts with it, ignoring case,
// so "test" matches "testing" but "ui" does not match "build".
type CapabilityKeywords struct {
	Capability string
	Keywords   []string
}

// DefaultCapabilityKeywords is the inference table, in output order.
var DefaultCapabilityKeywords = []CapabilityKeywords{
	{Capability: "code", Keywords: []string{"code", "build", "develop"}},
	{Capability: "testing", Keywords: []string{"test", "verify"}},
	{Capability: "aesthetics", Keywords: []string{"design", "ui", "style"}},
	{Capability: "research", Keywords: []string{"research", "search", "find"}},
	{Capability: "presentation", Keywords: []string{"presentation", "slide", "ppt"}},
	{Capability: "multimodal", Keywords: []string{"image", "video", "audio"}},
}

// InferCapabilities returns every capability whose keywords appear in text.
// With no match the result is [DefaultCapability].
func InferCapabilities(text string) []string {
	words := tokenize(text)

	var caps []string
	for _, group := range DefaultCapabilityKeywords {
		if matchesAny(words, group.Keywords) {
			caps = append(caps, group.Capability)
		}
	}
	if len(caps) == 0 {
		return []string{DefaultCapability}
	}
	return caps
}

func matchesAny(words, keywords []string) bool {
	for _, w := range words {
		for _, kw := range keywords {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
