package notify

import (
	"context"
	"encoding/json"
	"log"

	"absensi/internal/queue"
)

// MessageType tags attendance events on the queue.
const MessageType = "attendance"

// Publisher puts events on the queue for the dispatcher.
type Publisher struct {
	q queue.Queue
}

// NewPublisher creates a publisher.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish enqueues an event.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Dispatcher consumes attendance events and fans them out to the webhooks.
// Every delivery failure is logged and dropped; nothing feeds back into the
// request path that produced the event.
type Dispatcher struct {
	wa    *WhatsAppClient
	sheet *SheetClient
}

// NewDispatcher creates a dispatcher. Either client may be nil when the
// corresponding webhook is not configured.
func NewDispatcher(wa *WhatsAppClient, sheet *SheetClient) *Dispatcher {
	return &Dispatcher{wa: wa, sheet: sheet}
}

// Run consumes from q until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var evt Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("drop malformed notification: %v", err)
			continue
		}
		d.Deliver(ctx, evt)
	}
	return nil
}

// Deliver sends evt to both webhooks, best effort.
func (d *Dispatcher) Deliver(ctx context.Context, evt Event) {
	if d.wa != nil {
		if err := d.wa.Send(ctx, evt); err != nil {
			log.Printf("whatsapp notification failed: %v", err)
		}
	}
	if d.sheet != nil {
		if err := d.sheet.Append(ctx, evt); err != nil {
			log.Printf("sheet notification failed: %v", err)
		}
	}
}
