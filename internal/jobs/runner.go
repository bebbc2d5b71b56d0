// Package jobs implements the Background Job Runner (C8): a durable,
// at-least-once queue with retry/backoff over RabbitMQ. It generalizes the
// teacher's single-purpose booking-confirmed consumer/publisher pair
// (internal/queue, internal/service/queue_publisher.go) into a typed
// dispatcher over three named queues, per spec.md §4.8.
//
// Jobs never make authorization or admission decisions; they are write-down
// pipelines whose truth was already established in the hot store.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Queue names, matching spec.md §4.8 exactly.
const (
	QueuePersistBid          = "persist-bid"
	QueueUpdateAuctionMirror = "update-auction-mirror"
	QueueFinalizeAuction     = "finalize-auction"
)

// queueConfig captures the attempts/backoff policy per queue from spec.md §4.8.
type queueConfig struct {
	maxAttempts int
	backoffBase time.Duration
}

var queueConfigs = map[string]queueConfig{
	QueuePersistBid:          {maxAttempts: 3, backoffBase: 2 * time.Second},
	QueueUpdateAuctionMirror: {maxAttempts: 3, backoffBase: 2 * time.Second},
	QueueFinalizeAuction:     {maxAttempts: 5, backoffBase: 5 * time.Second},
}

func defaultQueueConfigs() map[string]queueConfig {
	out := make(map[string]queueConfig, len(queueConfigs))
	for k, v := range queueConfigs {
		out[k] = v
	}
	return out
}

// Job is the envelope carried on the wire. Key is the natural key from
// spec.md §4.8 ("bid-{auctionId}-{bidderId}-{serverTimeMicros}",
// "finalize-{auctionId}") used so that redelivery of the same logical job is
// recognizable; the underlying handlers must be idempotent on it since
// RabbitMQ itself does not coalesce by key.
type Job struct {
	Queue   string          `json:"queue"`
	Key     string          `json:"key"`
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one job's payload. Returning an error triggers a retry
// (bounded by the queue's maxAttempts) or, once exhausted, the job is
// logged and dropped — the write it represents can always be reconstructed
// from hot-state truth on the next trigger.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Runner owns the AMQP connection and dispatches deliveries to registered
// handlers, following the teacher's dial/backoff reconnect loop
// (internal/queue/consumer.go) generalized across three queues.
type Runner struct {
	url      string
	log      *logrus.Entry
	handlers map[string]Handler
	queues   map[string]queueConfig

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRunner constructs a Runner for the given AMQP URL, starting from the
// package defaults for attempts/backoff per queue.
func NewRunner(url string, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		url:      url,
		log:      log.WithField("component", "jobs"),
		handlers: make(map[string]Handler),
		queues:   defaultQueueConfigs(),
	}
}

// SetFinalizeMaxAttempts overrides the finalize-auction queue's retry ceiling
// with config.Config.FinalizationMaxAttempts (spec.md §6
// "finalization.maxAttempts"), rather than the package default. Call before
// Connect.
func (r *Runner) SetFinalizeMaxAttempts(n int) {
	if n <= 0 {
		return
	}
	cfg := r.queues[QueueFinalizeAuction]
	cfg.maxAttempts = n
	r.queues[QueueFinalizeAuction] = cfg
}

// RegisterHandler binds a Handler to a queue name. Call before Start.
func (r *Runner) RegisterHandler(queue string, h Handler) {
	r.handlers[queue] = h
}

// Connect dials RabbitMQ and declares the three durable queues. It retries
// with exponential backoff, mirroring the teacher's StartBookingConsumer
// dial loop.
func (r *Runner) Connect(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				_ = conn.Close()
				err = chErr
			} else {
				for q := range r.queues {
					if _, dErr := ch.QueueDeclare(q, true, false, false, false, nil); dErr != nil {
						err = dErr
						break
					}
				}
				if err == nil {
					r.conn = conn
					r.ch = ch
					return nil
				}
				_ = ch.Close()
				_ = conn.Close()
			}
		}
		r.log.WithError(err).WithField("retry_in", backoff).Warn("rabbitmq connect failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Enqueue publishes a job with Attempt=0 to the named queue.
func (r *Runner) Enqueue(ctx context.Context, queue, key string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("jobs: marshal payload for %s: %w", queue, err)
	}
	job := Job{Queue: queue, Key: key, Attempt: 0, Payload: raw}
	return r.publish(ctx, job)
}

func (r *Runner) publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal job %s: %w", job.Key, err)
	}
	return r.ch.PublishWithContext(ctx, "", job.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.Key,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// EnqueueDelayed schedules a job to be published at fireAt. Nothing in this
// repository calls it: the Finalization Coordinator arms Trigger A with its
// own time.AfterFunc timers. RabbitMQ core has no delayed-exchange primitive without a
// plugin absent from this corpus's dependency set, so the delay is held in
// process via a timer and the job is only handed to the broker once it
// fires; see DESIGN.md for the tradeoff.
func (r *Runner) EnqueueDelayed(ctx context.Context, queue, key string, payload interface{}, fireAt time.Time) *time.Timer {
	d := time.Until(fireAt)
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, func() {
		if err := r.Enqueue(ctx, queue, key, payload); err != nil {
			r.log.WithError(err).WithField("key", key).Error("delayed enqueue failed")
		}
	})
}

// Start launches one consumer goroutine per registered queue and blocks
// until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	for queue, handler := range r.handlers {
		msgs, err := r.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("jobs: consume %s: %w", queue, err)
		}
		go r.consumeLoop(ctx, queue, handler, msgs)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *Runner) consumeLoop(ctx context.Context, queue string, handler Handler, msgs <-chan amqp.Delivery) {
	cfg := r.queues[queue]
	for d := range msgs {
		var job Job
		if err := json.Unmarshal(d.Body, &job); err != nil {
			r.log.WithError(err).WithField("queue", queue).Error("dropping malformed job")
			_ = d.Ack(false)
			continue
		}
		err := handler(ctx, job.Payload)
		if err == nil {
			_ = d.Ack(false)
			continue
		}
		_ = d.Ack(false) // remove from queue; retry is republished separately, never left in-flight
		job.Attempt++
		if job.Attempt >= cfg.maxAttempts {
			r.log.WithError(err).WithFields(logrus.Fields{
				"queue": queue, "key": job.Key, "attempts": job.Attempt,
			}).Error("job exhausted retries")
			continue
		}
		backoff := cfg.backoffBase * time.Duration(1<<uint(job.Attempt-1))
		r.log.WithError(err).WithFields(logrus.Fields{
			"queue": queue, "key": job.Key, "attempt": job.Attempt, "retry_in": backoff,
		}).Warn("job failed, retrying")
		time.AfterFunc(backoff, func() {
			if pubErr := r.publish(ctx, job); pubErr != nil {
				r.log.WithError(pubErr).WithField("key", job.Key).Error("retry republish failed")
			}
		})
	}
}

// Close tears down the AMQP connection.
func (r *Runner) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
