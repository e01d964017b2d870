// Package webhooks notifies external systems of record changes. Events are
// queued as delivery records in the store and posted by a Worker, signed
// with the endpoint secret.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gridwatch/internal/model"
	"gridwatch/internal/store"
)

// Collection holds queued and finished deliveries.
const Collection = "webhook_deliveries"

// Delivery states.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Endpoint is a subscriber URL. Secret signs the body when set.
type Endpoint struct {
	URL    string
	Secret string
}

// Delivery is one event bound for one endpoint.
type Delivery struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	EventType     string `json:"eventType"`
	Payload       string `json:"payload"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	NextAttemptAt string `json:"nextAttemptAt"`
	LastError     string `json:"lastError,omitempty"`
	ResponseCode  int    `json:"responseCode,omitempty"`
	LatencyMs     int    `json:"latencyMs,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

type Publisher struct {
	Store     store.Store
	Endpoints []Endpoint
	now       func() time.Time
}

func NewPublisher(s store.Store, endpoints []Endpoint) *Publisher {
	return &Publisher{Store: s, Endpoints: endpoints, now: time.Now}
}

// Emit queues eventType for every endpoint. data is the changed record.
func (p *Publisher) Emit(ctx context.Context, eventType, collection string, data model.Record) error {
	if len(p.Endpoints) == 0 {
		return nil
	}
	now := p.now().UTC().Format(timeLayout)
	body, err := json.Marshal(map[string]any{
		"id":         uuid.NewString(),
		"type":       eventType,
		"collection": collection,
		"ts":         now,
		"data":       data,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	for _, ep := range p.Endpoints {
		rec, err := model.Encode(Delivery{
			URL:           ep.URL,
			EventType:     eventType,
			Payload:       string(body),
			Status:        StatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		delete(rec, "id")
		if _, err := p.Store.Put(ctx, Collection, rec); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", eventType, ep.URL, err)
		}
	}
	return nil
}
