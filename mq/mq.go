package mq

import (
	"context"
	"encoding/json"
)

type MessageQueue interface {
	Send(ctx context.Context, body string) error
	// Receive waits for at most one message. A nil message with a nil error
	// means the poll came back empty.
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}

// SendJSON marshals v and sends it as the message body.
func SendJSON(ctx context.Context, q MessageQueue, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.Send(ctx, string(body))
}
