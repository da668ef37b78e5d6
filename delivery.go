package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	ackTimeout = 3000 * time.Millisecond
	maxRetries = 3
)

// Outbox wraps a send function with at-least-once delivery for host-bound
// messages that must not be silently lost (answers, votes). Each message gets
// a fresh id; if no ack clears the pending entry within ackTimeout it is
// retransmitted, up to maxRetries times, after which onFail runs once and the
// entry is discarded. Acks are idempotent: clearing the pending entry is what
// cancels the next retry, so a duplicate ack or a late timer is a no-op.
type Outbox struct {
	clock  clockwork.Clock
	log    zerolog.Logger
	send   func(Envelope) error
	onFail func(Envelope)

	mu      sync.Mutex
	pending map[string]*pendingDelivery
}

type pendingDelivery struct {
	env     Envelope
	retries int
	timer   clockwork.Timer
}

func newOutbox(clock clockwork.Clock, log zerolog.Logger, send func(Envelope) error, onFail func(Envelope)) *Outbox {
	return &Outbox{
		clock:   clock,
		log:     log,
		send:    send,
		onFail:  onFail,
		pending: make(map[string]*pendingDelivery),
	}
}

// SendReliable transmits the envelope with a fresh message id and schedules
// the retry check. Send errors are not returned: a failed write looks the
// same as a lost message and is handled by the same retry path.
func (o *Outbox) SendReliable(env Envelope) string {
	env.MsgID = uuid.NewString()

	o.mu.Lock()
	pd := &pendingDelivery{env: env}
	o.pending[env.MsgID] = pd
	pd.timer = o.clock.AfterFunc(ackTimeout, func() { o.retry(env.MsgID) })
	o.mu.Unlock()

	if err := o.send(env); err != nil {
		o.log.Debug().Err(err).Str("msg_id", env.MsgID).Msg("reliable send failed, leaving to retry")
	}
	return env.MsgID
}

// Ack clears the pending entry for msgID. Safe to call any number of times,
// with ids that were never pending, or after final failure.
func (o *Outbox) Ack(msgID string) {
	o.mu.Lock()
	pd, ok := o.pending[msgID]
	if ok {
		delete(o.pending, msgID)
		pd.timer.Stop()
	}
	o.mu.Unlock()
}

func (o *Outbox) retry(msgID string) {
	o.mu.Lock()
	pd, ok := o.pending[msgID]
	if !ok {
		// Acked between the timer firing and us getting here.
		o.mu.Unlock()
		return
	}

	if pd.retries >= maxRetries {
		delete(o.pending, msgID)
		o.mu.Unlock()
		o.log.Warn().Str("msg_id", msgID).Str("type", string(pd.env.Type)).Msg("delivery failed after retries")
		if o.onFail != nil {
			o.onFail(pd.env)
		}
		return
	}

	pd.retries++
	pd.timer = o.clock.AfterFunc(ackTimeout, func() { o.retry(msgID) })
	env := pd.env
	o.mu.Unlock()

	o.log.Debug().Str("msg_id", msgID).Int("attempt", pd.retries).Msg("retransmitting")
	if err := o.send(env); err != nil {
		o.log.Debug().Err(err).Str("msg_id", msgID).Msg("retransmit failed")
	}
}

// PendingCount reports how many messages are awaiting acknowledgement.
func (o *Outbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
