package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	applog "cashly/internal/log"
)

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	observer     Observer
}

// Observer counts published and consumed jobs.
type Observer interface {
	Queue(direction, outcome string)
}

type noopObserver struct{}

func (noopObserver) Queue(string, string) {}

// Handler processes one job. Returning an error requeues the delivery once;
// a redelivered job that fails again is dropped.
type Handler func(ctx context.Context, msg *ReceiptJobMessage) error

// NewClient dials the broker, retrying connection errors with exponential
// backoff until attempts are exhausted or ctx is done.
func NewClient(ctx context.Context, url, exchangeName, queueName string, attempts int) (*Client, error) {
	var conn *amqp091.Connection
	var err error
	for attempt := 0; ; attempt++ {
		conn, err = amqp091.Dial(url)
		if err == nil {
			break
		}
		if attempt+1 >= attempts || !isConnectionError(err) {
			return nil, fmt.Errorf("dial AMQP: %w", err)
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP dial failed, retrying", applog.FieldComponent, applog.ComponentAMQP, "attempt", attempt+1, "wait", wait.String(), applog.FieldError, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("dial AMQP: %w", ctx.Err())
		}
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on the direct exchange
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishReceiptJob enqueues extraction of a pending receipt.
func (c *Client) PublishReceiptJob(ctx context.Context, receiptID int64) error {
	body, err := NewReceiptJobMessage(receiptID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	obs := c.obs()
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		obs.Queue("publish", "error")
		return fmt.Errorf("publish message: %w", err)
	}
	obs.Queue("publish", "ok")

	slog.InfoContext(ctx, "Published receipt job",
		applog.FieldComponent, applog.ComponentAMQP,
		applog.FieldReceiptID, receiptID,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeReceiptJobs delivers jobs to handler with at most concurrency in flight.
// It returns when ctx is cancelled or the delivery channel closes.
func (c *Client) ConsumeReceiptJobs(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := c.channel.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming receipt jobs", applog.FieldComponent, applog.ComponentAMQP, "queue", c.queueName, "concurrency", concurrency)

	var g errgroup.Group
	g.SetLimit(concurrency)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", applog.FieldComponent, applog.ComponentAMQP, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			g.Go(func() error {
				handleDelivery(ctx, delivery, handler, c.obs())
				return nil
			})
		}
	}
}

// handleDelivery decodes, dispatches and settles a single delivery.
func handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler, obs Observer) {
	msg, err := ReceiptJobMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message", applog.FieldComponent, applog.ComponentAMQP, applog.FieldError, err)
		d.Nack(false, false)
		obs.Queue("consume", "rejected")
		return
	}

	if err := handler(ctx, msg); err != nil {
		requeue := !d.Redelivered
		slog.ErrorContext(ctx, "Failed to handle receipt job",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldReceiptID, msg.ReceiptID,
			"requeue", requeue,
			applog.FieldError, err)
		d.Nack(false, requeue)
		if requeue {
			obs.Queue("consume", "requeued")
		} else {
			obs.Queue("consume", "dropped")
		}
		return
	}

	d.Ack(false)
	obs.Queue("consume", "ok")
	slog.InfoContext(ctx, "Receipt job handled", applog.FieldComponent, applog.ComponentAMQP, applog.FieldReceiptID, msg.ReceiptID)
}

// SetObserver installs o for publish and consume outcomes.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

func (c *Client) obs() Observer {
	if c.observer == nil {
		return noopObserver{}
	}
	return c.observer
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff doubles from one second, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "connection closed", "eof", "broken pipe", "closed network connection", "no such host", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
