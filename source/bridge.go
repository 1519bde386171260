package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// parseRFC3339 parses a timestamp, returning the zero time when the
// field is absent or malformed; sources fall back to detection time.
func parseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// The bridge clients fetch normalized batches from an integration
// sidecar over HTTP — the IMAP and social-API plumbing lives there, the
// engine only consumes its JSON. Both endpoints return what they have
// and clear their queue; redundant redelivery is handled by dedup.

// BridgeMailClient implements MailClient against a sidecar endpoint.
type BridgeMailClient struct {
	url    string
	client *http.Client
}

// NewBridgeMailClient creates a mail bridge client. client may be nil.
func NewBridgeMailClient(url string, client *http.Client) *BridgeMailClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &BridgeMailClient{url: url, client: client}
}

// Unseen implements MailClient.
func (c *BridgeMailClient) Unseen(ctx context.Context) ([]Mail, error) {
	var out struct {
		Messages []struct {
			From       string `json:"from"`
			Subject    string `json:"subject"`
			Body       string `json:"body"`
			ReceivedAt string `json:"receivedAt"`
		} `json:"messages"`
	}
	if err := c.getJSON(ctx, c.url, &out); err != nil {
		return nil, err
	}

	mails := make([]Mail, 0, len(out.Messages))
	for _, m := range out.Messages {
		mail := Mail{From: m.From, Subject: m.Subject, Body: m.Body}
		mail.ReceivedAt = parseRFC3339(m.ReceivedAt)
		mails = append(mails, mail)
	}
	return mails, nil
}

func (c *BridgeMailClient) getJSON(ctx context.Context, url string, v any) error {
	return getJSON(ctx, c.client, url, v)
}

// BridgeFeedClient implements FeedClient against a sidecar endpoint.
type BridgeFeedClient struct {
	url    string
	client *http.Client
}

// NewBridgeFeedClient creates a social feed bridge client. client may
// be nil.
func NewBridgeFeedClient(url string, client *http.Client) *BridgeFeedClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &BridgeFeedClient{url: url, client: client}
}

// Mentions implements FeedClient.
func (c *BridgeFeedClient) Mentions(ctx context.Context) ([]Mention, error) {
	var out struct {
		Mentions []struct {
			Platform string `json:"platform"`
			PostID   string `json:"postId"`
			Author   string `json:"author"`
			Text     string `json:"text"`
			PostedAt string `json:"postedAt"`
		} `json:"mentions"`
	}
	if err := getJSON(ctx, c.client, c.url, &out); err != nil {
		return nil, err
	}

	mentions := make([]Mention, 0, len(out.Mentions))
	for _, m := range out.Mentions {
		mention := Mention{Platform: m.Platform, PostID: m.PostID, Author: m.Author, Text: m.Text}
		mention.PostedAt = parseRFC3339(m.PostedAt)
		mentions = append(mentions, mention)
	}
	return mentions, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
