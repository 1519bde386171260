package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
)

// DefaultMailboxInterval matches the 5-minute inbox scan of the source
// system.
const DefaultMailboxInterval = 5 * time.Minute

// Mail is one inbound message as seen by the mailbox integration.
type Mail struct {
	From       string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// MailClient fetches unprocessed messages. The IMAP (or provider API)
// specifics live behind this interface; the engine only cares that a
// poll yields zero or more messages.
type MailClient interface {
	Unseen(ctx context.Context) ([]Mail, error)
}

// Mailbox polls an inbox and normalizes each message into a trigger
// event. A poll may re-scan messages already delivered; the dedup
// signature over (sender, subject, body prefix) absorbs that.
type Mailbox struct {
	client MailClient
}

// NewMailbox creates a mailbox source.
func NewMailbox(client MailClient) *Mailbox {
	return &Mailbox{client: client}
}

// Kind implements SignalSource.
func (m *Mailbox) Kind() event.SourceKind { return event.SourceMailbox }

// ProduceEvents implements SignalSource.
func (m *Mailbox) ProduceEvents(ctx context.Context) ([]*event.TriggerEvent, error) {
	mails, err := m.client.Unseen(ctx)
	if err != nil {
		return nil, fmt.Errorf("mailbox fetch: %w", err)
	}

	events := make([]*event.TriggerEvent, 0, len(mails))
	for _, mail := range mails {
		occurred := mail.ReceivedAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		raw := strings.TrimSpace(mail.Subject + "\n" + mail.Body)
		e := event.New(event.SourceMailbox, occurred, raw, map[string]string{
			"sender":  mail.From,
			"subject": mail.Subject,
		})
		e.Signature = dedup.Signature(e)
		events = append(events, e)
	}
	return events, nil
}
