// Package amqp carries refresh requests to the worker and announces computed
// series over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"savingsrate/internal/core"
	"savingsrate/internal/log"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrChannelClosed = errors.New("message channel closed")
)

// channel is the subset of *amqp091.Channel the client uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type Client struct {
	url          string
	exchangeName string
	queueName    string
	resultsKey   string
	logger       *log.Logger

	mu      sync.RWMutex
	conn    *amqp091.Connection
	channel channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

type Config struct {
	URL               string
	Exchange          string
	RefreshQueue      string
	ResultsRoutingKey string
}

// NewClient dials the broker and declares the exchange and refresh queue.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		queueName:    cfg.RefreshQueue,
		resultsKey:   cfg.ResultsRoutingKey,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if c.resultsKey == "" {
		c.resultsKey = "series.computed"
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()
	return nil
}

func (c *Client) setup(ch channel) error {
	if err := ch.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Reconnect redials with exponential backoff until it succeeds or ctx ends.
func (c *Client) Reconnect(ctx context.Context) error {
	c.closeConn()
	for attempt := 0; ; attempt++ {
		err := c.connect()
		if err == nil {
			c.recordSuccess()
			c.logger.InfoContext(ctx, "AMQP reconnected", "attempt", attempt+1)
			return nil
		}
		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP reconnect failed", log.FieldError, err.Error(), "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// PublishRefresh enqueues a refresh request and returns its ID.
func (c *Client) PublishRefresh(ctx context.Context, reason string) (string, error) {
	msg := NewRefreshRequest(reason)
	body, err := msg.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, msg.RequestID, body); err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "Published refresh request",
		log.FieldRequestID, msg.RequestID, "reason", reason, "queue", c.queueName)
	return msg.RequestID, nil
}

// PublishResult announces a computed result on the results routing key.
func (c *Client) PublishResult(ctx context.Context, requestID string, res core.ComparisonResult) error {
	msg := NewSeriesComputed(requestID, res)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.resultsKey, msg.RequestID, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Published series computed event",
		log.FieldRequestID, msg.RequestID, "routing_key", c.resultsKey, "profiles", len(res.Profiles))
	return nil
}

func (c *Client) publish(ctx context.Context, key, messageID string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", key, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		c.recordFailure()
		return fmt.Errorf("publish to %s: %w", key, ErrChannelClosed)
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := ch.PublishWithContext(pctx, c.exchangeName, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// RefreshHandler processes one refresh request.
type RefreshHandler func(ctx context.Context, msg *RefreshRequest) error

// ConsumeRefresh delivers refresh requests to handler one at a time until
// ctx ends or the broker closes the channel. Malformed messages are dropped;
// a failed message is requeued once and dropped on its second failure.
func (c *Client) ConsumeRefresh(ctx context.Context, handler RefreshHandler) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return ErrChannelClosed
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.logger.InfoContext(ctx, "Started consuming refresh requests", "queue", c.queueName)
	return c.consume(ctx, msgs, handler)
}

// Run consumes until ctx ends, reconnecting whenever the broker connection
// drops.
func (c *Client) Run(ctx context.Context, handler RefreshHandler) error {
	for {
		err := c.ConsumeRefresh(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		c.logger.WarnContext(ctx, "AMQP connection lost", log.FieldError, err.Error())
		c.recordFailure()
		if err := c.Reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler RefreshHandler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Client) handle(ctx context.Context, d amqp091.Delivery, handler RefreshHandler) {
	msg, err := RefreshRequestFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping malformed refresh request", log.FieldError, err.Error())
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, msg); err != nil {
		requeue := !d.Redelivered
		c.logger.ErrorContext(ctx, "Refresh request failed",
			log.FieldRequestID, msg.RequestID, log.FieldError, err.Error(), "requeue", requeue)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Healthy reports whether the connection is open and the breaker closed.
func (c *Client) Healthy(context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.RLock()
	last := c.lastFailure
	c.mu.RUnlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff doubles from one second, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError reports errors that call for a reconnect.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChannelClosed) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeConn() {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.channel, c.conn = nil, nil
	c.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) Close() error {
	c.closeConn()
	return nil
}
