package natsutil

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/contracts"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/messaging"
	"github.com/socialstream/platform/internal/metrics"
)

const (
	// Publishes issued while the connection is down buffer up to this many
	// bytes; beyond that they fail fast as BusUnavailable.
	reconnectBufBytes = 8 * 1024 * 1024

	reconnectWait  = 2 * time.Second
	publishTimeout = 5 * time.Second
)

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func Connect(url string, logger *zerolog.Logger) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.ReconnectBufSize(reconnectBufBytes),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("bus connection lost, buffering publishes")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("bus reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStream(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

func ConnectWithRetry(url string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := Connect(url, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect bus timeout after %s: %w", timeout, lastErr)
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

type Publisher interface {
	Publish(routingKey string, payload []byte) error
}

// BusPublisher sends domain events to the shared exchange. Publish returns
// once the broker has accepted the message for routing; delivery to any
// consumer is never confirmed to the producer.
type BusPublisher struct {
	JS nats.JetStreamContext
}

func (p BusPublisher) Publish(routingKey string, payload []byte) error {
	_, err := p.JS.Publish(contracts.Subject(routingKey), payload, nats.AckWait(publishTimeout))
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues(routingKey).Inc()
		return faults.Wrap(faults.BusUnavailable, err, "publish "+routingKey)
	}
	metrics.EventsPublished.WithLabelValues(routingKey).Inc()
	return nil
}

// Handler applies one delivered event. A Validation-kind error marks the
// message unprocessable and it is dropped without redelivery; any other
// error requests exactly one redelivery before the drop.
type Handler func(routingKey string, payload []byte) error

type ackAction int

const (
	ackMessage ackAction = iota
	termUnprocessable
	termRetriesExhausted
	nakForRetry
)

// disposition encodes the retry policy: first delivery, at most one
// redelivery, drop. Unprocessable events never earn a redelivery.
func disposition(err error, numDelivered uint64) ackAction {
	switch {
	case err == nil:
		return ackMessage
	case faults.Is(err, faults.Validation):
		return termUnprocessable
	case numDelivered >= maxDeliveries:
		return termRetriesExhausted
	default:
		return nakForRetry
	}
}

// invoke runs the handler with a panic guard so one poisoned event cannot
// crash the subscriber loop.
func invoke(handler Handler, routingKey string, payload []byte) (err error, panicked any) {
	defer func() {
		panicked = recover()
	}()
	return handler(routingKey, payload), nil
}

// Subscribe binds a durable queue group to a routing-key pattern on the
// exchange.
func Subscribe(js nats.JetStreamContext, queue, pattern string, handler Handler, logger *zerolog.Logger) (*nats.Subscription, error) {
	return js.QueueSubscribe(contracts.Subject(pattern), queue, func(msg *nats.Msg) {
		routingKey := contracts.RoutingKey(msg.Subject)

		err, panicked := invoke(handler, routingKey, msg.Data)
		if panicked != nil {
			logger.Error().Str("queue", queue).Str("routing_key", routingKey).
				Interface("panic", panicked).Msg("event handler panicked")
			metrics.EventsDropped.WithLabelValues(queue, "panic").Inc()
			_ = msg.Term()
			return
		}

		numDelivered := uint64(1)
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			numDelivered = meta.NumDelivered
		}

		switch disposition(err, numDelivered) {
		case ackMessage:
			_ = msg.Ack()
		case termUnprocessable:
			logger.Warn().Str("queue", queue).Str("routing_key", routingKey).Err(err).
				Msg("discarding unprocessable event")
			metrics.EventsDropped.WithLabelValues(queue, "unprocessable").Inc()
			_ = msg.Term()
		case termRetriesExhausted:
			logger.Error().Str("queue", queue).Str("routing_key", routingKey).Err(err).
				Uint64("deliveries", numDelivered).
				Msg("dropping event after retry budget")
			metrics.EventsDropped.WithLabelValues(queue, "retries_exhausted").Inc()
			_ = msg.Term()
		case nakForRetry:
			logger.Warn().Str("queue", queue).Str("routing_key", routingKey).Err(err).
				Msg("event handling failed, requeueing once")
			metrics.ConsumerRetries.WithLabelValues(queue).Inc()
			_ = msg.Nak()
		}
	}, nats.ManualAck(), nats.AckExplicit(), nats.MaxDeliver(maxDeliveries))
}

// No dead-letter path exists: first delivery, at most one redelivery, drop.
const maxDeliveries = 2
