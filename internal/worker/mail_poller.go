// Package worker hosts the background loops: the mailbox poller feeding the
// intake pipeline and the OCR poller draining pending documents.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/voyagecover/claims-intake/internal/intake"
	"github.com/voyagecover/claims-intake/internal/mail"
	"github.com/voyagecover/claims-intake/internal/pkg/distlock"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// MailPoller polls the mailbox on an interval and pushes each message
// through the intake pipeline.
type MailPoller struct {
	mailbox  mail.Mailbox
	pipeline *intake.Pipeline
	messages intake.MessageStore
	seen     *SeenCache
	lock     distlock.DistLock

	interval  time.Duration
	batchSize int

	// running guards against overlapping passes when one tick runs long.
	running atomic.Bool
}

// NewMailPoller creates the mailbox poller. seen may be nil. lock, when
// set, keeps scaled-out workers from polling the same inbox concurrently.
func NewMailPoller(mailbox mail.Mailbox, pipeline *intake.Pipeline, messages intake.MessageStore,
	seen *SeenCache, lock distlock.DistLock, interval time.Duration, batchSize int) *MailPoller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &MailPoller{
		mailbox:   mailbox,
		pipeline:  pipeline,
		messages:  messages,
		seen:      seen,
		lock:      lock,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start runs the polling loop until ctx is cancelled. One pass runs
// immediately so a fresh deployment does not wait a full interval.
func (p *MailPoller) Start(ctx context.Context) {
	logger.Info("mail poller started", "interval", p.interval.String(), "batch_size", p.batchSize)

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("mail poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *MailPoller) runOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		logger.Warn("mail poll skipped, previous pass still running")
		return
	}
	defer p.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("mail poll panicked", "panic", r)
		}
	}()

	if p.lock != nil {
		ok, err := p.lock.Acquire(ctx)
		if err != nil {
			logger.Error("mail poll lock error", "error", err.Error())
			return
		}
		if !ok {
			logger.Debug("mail poll skipped, another instance holds the lock")
			return
		}
		defer func() {
			if err := p.lock.Release(ctx); err != nil {
				logger.Warn("mail poll lock release failed", "error", err.Error())
			}
		}()
	}

	if err := p.poll(ctx); err != nil {
		logger.Error("mail poll failed", "error", err.Error())
	}
}

func (p *MailPoller) poll(ctx context.Context) error {
	msgs, err := p.mailbox.ListRecent(ctx, int64(p.batchSize))
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	var handled, skipped int
	for _, raw := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.seen.Seen(ctx, raw.Id) {
			skipped++
			continue
		}
		if p.handleMessage(ctx, raw) {
			p.seen.Mark(ctx, raw.Id)
			handled++
		}
	}

	if handled > 0 {
		logger.Info("mail poll pass complete", "handled", handled, "skipped", skipped)
	}
	return nil
}

// handleMessage processes one raw message. Returns true when the message is
// fully handled and safe to mark seen; transient failures return false so
// the next pass retries.
func (p *MailPoller) handleMessage(ctx context.Context, raw *gmail.Message) bool {
	msg, err := mail.Normalize(raw)
	if errors.Is(err, mail.ErrMalformed) {
		payload, merr := json.Marshal(raw)
		if merr != nil {
			payload = []byte(err.Error())
		}
		if dlerr := p.messages.DeadLetter(ctx, raw.Id, payload, err.Error()); dlerr != nil {
			logger.Error("dead-lettering malformed message failed", "provider_id", raw.Id, "error", dlerr.Error())
			return false
		}
		logger.Warn("malformed message dead-lettered", "provider_id", raw.Id, "reason", err.Error())
		return true
	}
	if err != nil {
		logger.Error("normalizing message failed", "provider_id", raw.Id, "error", err.Error())
		return false
	}

	outcome, err := p.pipeline.ProcessMessage(ctx, msg)
	if err != nil {
		logger.Error("processing message failed", "provider_id", msg.ProviderID, "error", err.Error())
		return false
	}

	if outcome.Duplicate {
		logger.Debug("message already processed", "provider_id", msg.ProviderID)
		return true
	}

	fields := []interface{}{
		"provider_id", msg.ProviderID,
		"disposition", string(outcome.Disposition),
	}
	if outcome.Claim != nil {
		fields = append(fields, "claim_number", outcome.Claim.ClaimNumber, "email_sent", outcome.EmailSent)
	}
	logger.Info("message processed", fields...)
	return true
}
