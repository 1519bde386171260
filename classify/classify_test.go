package classify

import (
	"testing"
	"time"

	"github.com/clayforge/trigger/event"
)

func newEvent(source event.SourceKind, text string) *event.TriggerEvent {
	return event.New(source, time.Now(), text, nil)
}

func TestClockAlwaysActionable(t *testing.T) {
	c := NewKeywordClassifier(nil, nil)

	for _, text := range []string{"", "nothing relevant here", "lorem ipsum"} {
		cls := c.Classify(newEvent(event.SourceClock, text))
		if !cls.Actionable {
			t.Errorf("clock event with text %q should be actionable", text)
		}
	}
}

func TestNoMatchNotActionable(t *testing.T) {
	c := NewKeywordClassifier(nil, nil)

	texts := []string{
		"",
		"invoice attached for last month",
		"meeting moved to thursday",
	}
	for _, text := range texts {
		cls := c.Classify(newEvent(event.SourceMailbox, text))
		if cls.Actionable {
			t.Errorf("text %q should not be actionable", text)
		}
		if len(cls.MatchedTerms) != 0 {
			t.Errorf("text %q matched terms %v", text, cls.MatchedTerms)
		}
	}
}

func TestKeywordMatch(t *testing.T) {
	c := NewKeywordClassifier(nil, nil)

	tests := []struct {
		text      string
		platforms []string
	}{
		{"Need a TikTok post for our launch", []string{"tiktok"}},
		{"can you create something for LinkedIn and Instagram?", []string{"linkedin", "instagram"}},
		{"looking for content about roofing", nil},
		{"HELP WITH our social media presence", nil},
	}
	for _, tc := range tests {
		cls := c.Classify(newEvent(event.SourceMailbox, tc.text))
		if !cls.Actionable {
			t.Errorf("text %q should be actionable", tc.text)
			continue
		}
		if len(cls.Platforms) != len(tc.platforms) {
			t.Errorf("text %q: platforms = %v, want %v", tc.text, cls.Platforms, tc.platforms)
			continue
		}
		for i, p := range tc.platforms {
			if cls.Platforms[i] != p {
				t.Errorf("text %q: platforms = %v, want %v", tc.text, cls.Platforms, tc.platforms)
			}
		}
	}
}

func TestCustomTerms(t *testing.T) {
	c := NewKeywordClassifier([]string{"storm damage"}, []string{"facebook"})

	cls := c.Classify(newEvent(event.SourceWebForm, "We have STORM DAMAGE, post it on Facebook"))
	if !cls.Actionable {
		t.Fatal("expected actionable")
	}
	if len(cls.MatchedTerms) != 1 || cls.MatchedTerms[0] != "storm damage" {
		t.Errorf("matched terms = %v", cls.MatchedTerms)
	}
	if len(cls.Platforms) != 1 || cls.Platforms[0] != "facebook" {
		t.Errorf("platforms = %v", cls.Platforms)
	}

	// Default terms must not apply once custom terms are set.
	cls = c.Classify(newEvent(event.SourceWebForm, "need a tiktok post"))
	if cls.Actionable {
		t.Error("default terms should be replaced by custom terms")
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewKeywordClassifier(nil, nil)
	e := newEvent(event.SourceSocial, "need help with marketing on tiktok")

	first := c.Classify(e)
	second := c.Classify(e)

	if first.Actionable != second.Actionable ||
		len(first.Platforms) != len(second.Platforms) ||
		len(first.MatchedTerms) != len(second.MatchedTerms) {
		t.Errorf("classification changed between calls: %+v vs %+v", first, second)
	}
	if e.RawText != "need help with marketing on tiktok" {
		t.Error("classification mutated the event")
	}
}
