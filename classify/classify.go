// Package classify decides whether a trigger event warrants a workflow.
// Classification is a pure function of the event: case-insensitive
// substring matching against configured term and platform lists. The
// Classifier interface exists so a smarter implementation can replace the
// keyword heuristic without touching the dispatcher.
package classify

import (
	"strings"

	"github.com/clayforge/trigger/event"
)

// Classification is the derived relevance decision for one event.
type Classification struct {
	Actionable   bool     `json:"actionable"`
	Platforms    []string `json:"platforms,omitempty"`
	MatchedTerms []string `json:"matchedTerms,omitempty"`
}

// Classifier inspects an event's free-text payload.
type Classifier interface {
	Classify(e *event.TriggerEvent) Classification
}

// DefaultTerms are the content-request indicators carried over from the
// production keyword lists. Any single match marks an event actionable.
func DefaultTerms() []string {
	return []string{
		"need content", "create post", "make video", "social media",
		"tiktok", "linkedin", "instagram", "marketing",
		"content request", "help with", "can you create",
		"looking for content",
	}
}

// DefaultPlatforms are the platform names scanned for in event text.
func DefaultPlatforms() []string {
	return []string{"tiktok", "linkedin", "instagram", "twitter"}
}

// KeywordClassifier matches configured terms against event text.
// The zero value is not usable; use NewKeywordClassifier.
type KeywordClassifier struct {
	terms     []string
	platforms []string
}

// NewKeywordClassifier creates a classifier with the given term and
// platform lists. Empty slices fall back to the defaults.
func NewKeywordClassifier(terms, platforms []string) *KeywordClassifier {
	if len(terms) == 0 {
		terms = DefaultTerms()
	}
	if len(platforms) == 0 {
		platforms = DefaultPlatforms()
	}
	c := &KeywordClassifier{
		terms:     make([]string, len(terms)),
		platforms: make([]string, len(platforms)),
	}
	for i, t := range terms {
		c.terms[i] = strings.ToLower(t)
	}
	for i, p := range platforms {
		c.platforms[i] = strings.ToLower(p)
	}
	return c
}

// Classify implements Classifier. Clock events are always actionable:
// scheduled jobs carry no free text to judge. For every other source the
// event is actionable iff at least one configured term appears in the
// raw text.
func (c *KeywordClassifier) Classify(e *event.TriggerEvent) Classification {
	text := strings.ToLower(e.RawText)

	var matched []string
	for _, term := range c.terms {
		if strings.Contains(text, term) {
			matched = append(matched, term)
		}
	}

	var platforms []string
	for _, p := range c.platforms {
		if strings.Contains(text, p) {
			platforms = append(platforms, p)
		}
	}

	return Classification{
		Actionable:   e.Source == event.SourceClock || len(matched) > 0,
		Platforms:    platforms,
		MatchedTerms: matched,
	}
}
