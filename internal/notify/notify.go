// Package notify sends migration completion and cancellation notices to
// shoutrrr service URLs (Slack, Teams, SMTP, generic webhooks, ...).
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

const backlog = 64

// Sender delivers one message to every configured service.
// *router.ServiceRouter satisfies it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier is a migration.Telemetry that forwards terminal migration events to
// a Sender. Delivery happens on the Run goroutine so engines never block on it.
type Notifier struct {
	sender Sender
	log    logger.Logger
	notes  chan note
}

type note struct {
	title string
	body  string
}

// New builds a notifier for urls. It returns nil when no URL is configured.
func New(urls []string, timeout time.Duration, log logger.Logger) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sender, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid notification url: %w", err)).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(quietLogger())
	return NewWithSender(sender, log), nil
}

// NewWithSender builds a notifier around an existing sender.
func NewWithSender(sender Sender, log logger.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		log:    log.Module("notify"),
		notes:  make(chan note, backlog),
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Track queues a notice for completed and cancelled migrations and ignores every
// other event. A full backlog drops the notice.
func (n *Notifier) Track(_ context.Context, ev migration.Event) {
	var verb string
	switch ev.Name {
	case migration.EventMigrationCompleted:
		verb = "completed"
	case migration.EventMigrationCancelled:
		verb = "was cancelled"
	default:
		return
	}

	msg := note{
		title: fmt.Sprintf("syncbridge: %s migration %s", ev.DomainType, verb),
		body: fmt.Sprintf("Migration %s of %s %s. Migrated %s of an estimated %s records, %s failed.",
			ev.MigrationID, ev.DomainType, verb,
			orZero(ev.Attributes["records_migrated"]),
			orZero(ev.Attributes["estimated_count"]),
			orZero(ev.Attributes["records_failed"])),
	}
	select {
	case n.notes <- msg:
	default:
		n.log.Warn("notification backlog full, dropping notice", logger.String("migration_id", ev.MigrationID))
	}
}

// Run delivers queued notices until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.notes:
			n.send(msg)
		}
	}
}

func (n *Notifier) send(msg note) {
	params := stypes.Params{}
	params.SetTitle(msg.title)
	for _, err := range n.sender.Send(msg.body, &params) {
		if err != nil {
			n.log.Warn("notification delivery failed", logger.String("title", msg.title), logger.Error(err))
		}
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
