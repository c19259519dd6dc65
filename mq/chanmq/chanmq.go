// Package chanmq is an in-process MessageQueue with SQS-like delivery: a
// received message stays hidden for the visibility timeout and is delivered
// again unless it is deleted first.
package chanmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/spectra-gallery/spectra-playground/mq"
)

type inflight struct {
	msg      mq.Message
	deadline time.Time
}

type ChanMessageQueue struct {
	// PollWait bounds how long Receive blocks on an empty queue.
	PollWait time.Duration

	mu       sync.Mutex
	nextId   int
	ready    []mq.Message
	inflight map[string]inflight
	notify   chan struct{}
}

func New() *ChanMessageQueue {
	return &ChanMessageQueue{
		PollWait: time.Second,
		inflight: make(map[string]inflight),
		notify:   make(chan struct{}, 1),
	}
}

func (q *ChanMessageQueue) Send(ctx context.Context, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.nextId++
	q.ready = append(q.ready, mq.Message{Id: strconv.Itoa(q.nextId), Body: body})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *ChanMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	timer := time.NewTimer(q.PollWait)
	defer timer.Stop()

	for {
		if msg := q.take(time.Duration(visibilityTimeout) * time.Second); msg != nil {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *ChanMessageQueue) take(visibility time.Duration) *mq.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for id, f := range q.inflight {
		if now.After(f.deadline) {
			delete(q.inflight, id)
			q.ready = append(q.ready, f.msg)
		}
	}
	if len(q.ready) == 0 {
		return nil
	}

	msg := q.ready[0]
	q.ready = q.ready[1:]
	q.inflight[msg.Id] = inflight{msg: msg, deadline: now.Add(visibility)}
	return &msg
}

func (q *ChanMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[msg.Id]; !ok {
		return errors.New("message not in flight: " + msg.Id)
	}
	delete(q.inflight, msg.Id)
	return nil
}

// Len reports how many messages are waiting or in flight.
func (q *ChanMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}
