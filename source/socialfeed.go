package source

import (
	"context"
	"fmt"
	"time"

	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
)

// DefaultSocialInterval matches the 10-minute mention scan of the source
// system.
const DefaultSocialInterval = 10 * time.Minute

// Mention is one social-media mention as seen by the feed integration.
type Mention struct {
	Platform string
	PostID   string
	Author   string
	Text     string
	PostedAt time.Time
}

// FeedClient fetches recent mentions across the configured platforms.
// Provider API specifics live behind this interface.
type FeedClient interface {
	Mentions(ctx context.Context) ([]Mention, error)
}

// SocialFeed polls for brand mentions and normalizes each into a trigger
// event keyed on (platform, post id).
type SocialFeed struct {
	client FeedClient
}

// NewSocialFeed creates a social feed source.
func NewSocialFeed(client FeedClient) *SocialFeed {
	return &SocialFeed{client: client}
}

// Kind implements SignalSource.
func (s *SocialFeed) Kind() event.SourceKind { return event.SourceSocial }

// ProduceEvents implements SignalSource.
func (s *SocialFeed) ProduceEvents(ctx context.Context) ([]*event.TriggerEvent, error) {
	mentions, err := s.client.Mentions(ctx)
	if err != nil {
		return nil, fmt.Errorf("social feed fetch: %w", err)
	}

	events := make([]*event.TriggerEvent, 0, len(mentions))
	for _, m := range mentions {
		occurred := m.PostedAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		e := event.New(event.SourceSocial, occurred, m.Text, map[string]string{
			"platform": m.Platform,
			"post_id":  m.PostID,
			"user":     m.Author,
		})
		e.Signature = dedup.Signature(e)
		events = append(events, e)
	}
	return events, nil
}
