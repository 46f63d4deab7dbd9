package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pkglogger "github.com/damoang/coinchat/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultQueueSize   = 1024
	defaultDialTimeout = 3 * time.Second
	publishTimeout     = 5 * time.Second
	redialBackoff      = 5 * time.Second
)

var (
	// ErrQueueFull is returned when the outbound buffer is saturated; the event is dropped.
	ErrQueueFull = errors.New("event queue full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("event publisher closed")
)

type outbound struct {
	routingKey string
	body       []byte
	at         time.Time
}

// AMQPOptions tunes the background publisher. Zero values use defaults.
type AMQPOptions struct {
	DialTimeout time.Duration
	QueueSize   int
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
// Publish only enqueues; a single background goroutine owns the broker
// connection, dials lazily and re-dials after a failure.
type AMQPPublisher struct {
	url         string
	exchange    string
	dialTimeout time.Duration

	queue     chan outbound
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// run goroutine 전용
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
	now     func() time.Time
}

// NewAMQPPublisher starts the drain goroutine. It does not dial.
func NewAMQPPublisher(url, exchange string, opts AMQPOptions) *AMQPPublisher {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	p := &AMQPPublisher{
		url:         url,
		exchange:    exchange,
		dialTimeout: opts.DialTimeout,
		queue:       make(chan outbound, opts.QueueSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		now:         time.Now,
	}
	go p.run()
	return p
}

// Publish hands payload to the background sender. It never waits on the broker.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case p.queue <- outbound{routingKey: routingKey, body: body, at: time.Now().UTC()}:
		return nil
	default:
		pkglogger.GetLogger().Warn().Str("routing_key", routingKey).Msg("event queue full, dropping event")
		return ErrQueueFull
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			p.drain()
			p.closeConn()
			return
		case m := <-p.queue:
			p.send(m)
		}
	}
}

// drain flushes what is already buffered at shutdown.
func (p *AMQPPublisher) drain() {
	for {
		select {
		case m := <-p.queue:
			p.send(m)
		default:
			return
		}
	}
}

func (p *AMQPPublisher) send(m outbound) {
	log := pkglogger.GetLogger()

	ch, err := p.channel()
	if err != nil {
		log.Warn().Err(err).Str("routing_key", m.routingKey).Msg("event publish skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, p.exchange, m.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.at,
		Body:         m.body,
	})
	if err != nil {
		p.closeConn()
		log.Warn().Err(err).Str("routing_key", m.routingKey).Msg("event publish failed")
	}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeConn()

	// 브로커 장애 시 메시지마다 dial 대기하지 않도록
	if p.now().Before(p.retryAt) {
		return nil, errors.New("rabbitmq unavailable, waiting to redial")
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable topic exchange; consumers bind their own queues
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops accepting events, flushes the buffer and releases the connection.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}
