package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendRecorder struct {
	mu    sync.Mutex
	sent  []Envelope
	err   error
	fails []Envelope
}

func (sr *sendRecorder) send(env Envelope) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sent = append(sr.sent, env)
	return sr.err
}

func (sr *sendRecorder) onFail(env Envelope) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.fails = append(sr.fails, env)
}

func (sr *sendRecorder) sentCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.sent)
}

func (sr *sendRecorder) failCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.fails)
}

func newTestOutbox(sr *sendRecorder) *Outbox {
	return newOutbox(clockwork.NewFakeClock(), zerolog.Nop(), sr.send, sr.onFail)
}

func TestOutboxAckClearsPending(t *testing.T) {
	sr := &sendRecorder{}
	o := newTestOutbox(sr)

	id := o.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: "hi"}))

	require.Equal(t, 1, sr.sentCount())
	require.Equal(t, 1, o.PendingCount())
	assert.Equal(t, id, sr.sent[0].MsgID)

	o.Ack(id)
	assert.Equal(t, 0, o.PendingCount())

	// A timer firing after the ack must not retransmit.
	o.retry(id)
	assert.Equal(t, 1, sr.sentCount())
}

func TestOutboxDuplicateAck(t *testing.T) {
	sr := &sendRecorder{}
	o := newTestOutbox(sr)

	id := o.SendReliable(newEnvelope(TypeVote, VotePayload{}))
	o.Ack(id)
	o.Ack(id)
	o.Ack("never-sent")

	assert.Equal(t, 0, o.PendingCount())
	assert.Equal(t, 1, sr.sentCount())
}

func TestOutboxRetriesThenFails(t *testing.T) {
	sr := &sendRecorder{}
	o := newTestOutbox(sr)

	id := o.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: "hi"}))

	// Each unacked deadline retransmits, up to the retry budget.
	for i := 0; i < maxRetries; i++ {
		o.retry(id)
	}
	assert.Equal(t, 1+maxRetries, sr.sentCount())
	assert.Equal(t, 1, o.PendingCount())
	assert.Equal(t, 0, sr.failCount())

	// The next deadline gives up.
	o.retry(id)
	assert.Equal(t, 1+maxRetries, sr.sentCount())
	assert.Equal(t, 0, o.PendingCount())
	require.Equal(t, 1, sr.failCount())
	assert.Equal(t, TypeAnswer, sr.fails[0].Type)

	// Late firings and late acks after the failure are no-ops.
	o.retry(id)
	o.Ack(id)
	assert.Equal(t, 1, sr.failCount())
	assert.Equal(t, 1+maxRetries, sr.sentCount())
}

func TestOutboxSendErrorLeavesPending(t *testing.T) {
	sr := &sendRecorder{err: fmt.Errorf("broken pipe")}
	o := newTestOutbox(sr)

	o.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: "hi"}))

	// A failed write is indistinguishable from a lost message; the pending
	// entry stays and the retry path owns recovery.
	assert.Equal(t, 1, o.PendingCount())
	assert.Equal(t, 1, sr.sentCount())
}

func TestOutboxDistinctMessageIDs(t *testing.T) {
	sr := &sendRecorder{}
	o := newTestOutbox(sr)

	a := o.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: "one"}))
	b := o.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: "two"}))

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, o.PendingCount())

	o.Ack(a)
	assert.Equal(t, 1, o.PendingCount())
}
