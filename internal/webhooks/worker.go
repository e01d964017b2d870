package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	BatchSize   int

	secrets map[string]string
	now     func() time.Time
}

func NewWorker(s store.Store, endpoints []Endpoint, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	secrets := make(map[string]string, len(endpoints))
	for _, ep := range endpoints {
		secrets[ep.URL] = ep.Secret
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		BatchSize:   50,
		secrets:     secrets,
		now:         time.Now,
	}
}

// Run polls for due deliveries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				logger.Warnf(ctx, "webhook poll: %v", err)
			}
		}
	}
}

func (w *Worker) due(ctx context.Context) ([]Delivery, error) {
	recs, err := w.Store.Query(ctx, Collection, filter.Query{
		Where: []filter.Condition{
			filter.Equal("status", StatusPending),
			{Field: "nextAttemptAt", Op: filter.Lte, Value: w.now().UTC().Format(timeLayout)},
		},
		Sort:  filter.Sort{Field: "nextAttemptAt"},
		Limit: w.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, 0, len(recs))
	for _, r := range recs {
		var d Delivery
		if err := model.Decode(r, &d); err != nil {
			logger.Warnf(ctx, "skip malformed delivery %s: %v", r.ID(), err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	items, err := w.due(ctx)
	if err != nil {
		return err
	}
	for _, d := range items {
		w.attempt(ctx, d)
	}
	return nil
}

func (w *Worker) attempt(ctx context.Context, d Delivery) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	code, lastErr := 0, ""
	start := w.now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.URL, bytes.NewReader([]byte(d.Payload)))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", d.EventType)
		req.Header.Set("X-Delivery-Id", d.ID)
		if secret := w.secrets[d.URL]; secret != "" {
			req.Header.Set("X-Signature", SignHMAC(secret, []byte(d.Payload)))
		}
		var resp *http.Response
		resp, err = w.HTTP.Do(req)
		if resp != nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
		}
	}
	success := err == nil && code >= 200 && code < 300
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = http.StatusText(code)
	}

	d.Attempts++
	d.ResponseCode = code
	d.LatencyMs = int(w.now().Sub(start).Milliseconds())
	d.LastError = lastErr
	switch {
	case success:
		d.Status = StatusDelivered
	case d.Attempts >= w.MaxAttempts:
		d.Status = StatusFailed
		logger.Warn(ctx, "webhook delivery abandoned",
			zap.String("delivery", d.ID), zap.String("url", d.URL), zap.Int("attempts", d.Attempts), zap.String("error", lastErr))
	default:
		d.NextAttemptAt = w.now().Add(nextBackoff(d.Attempts)).UTC().Format(timeLayout)
	}
	metrics.WebhookDeliveries.WithLabelValues(d.Status).Inc()

	rec, err := model.Encode(d)
	if err == nil {
		_, err = w.Store.Put(ctx, Collection, rec)
	}
	if err != nil {
		logger.Errorf(ctx, "record webhook delivery %s: %v", d.ID, err)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
