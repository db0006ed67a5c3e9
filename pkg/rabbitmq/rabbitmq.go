package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	amqp "github.com/streadway/amqp"
)

const (
	// PhotoExchange is the topic exchange every photo event is published to.
	PhotoExchange = "photo.events"
	// PhotoQueue receives every photo.* event.
	PhotoQueue      = "photo_events"
	photoBindingKey = "photo.#"
)

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// amqp channels are not safe for concurrent publishing.
	mu  sync.Mutex
	log zerolog.Logger
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
}

// NewClient creates a new RabbitMQ client.
// It connects to RabbitMQ, sets up a channel and declares the photo exchange
// and queue.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Client{
		conn:    conn,
		channel: ch,
		log:     log.With().Str("component", "rabbitmq").Logger(),
	}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}

	c.log.Info().Str("exchange", PhotoExchange).Str("queue", PhotoQueue).Msg("RabbitMQ client connected")
	return c, nil
}

func (c *Client) declareTopology() error {
	err := c.channel.ExchangeDeclare(
		PhotoExchange, // name
		"topic",       // kind
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", PhotoExchange, err)
	}

	_, err = c.channel.QueueDeclare(
		PhotoQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", PhotoQueue, err)
	}

	if err := c.channel.QueueBind(PhotoQueue, photoBindingKey, PhotoExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", PhotoQueue, PhotoExchange, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// Publish sends a persistent JSON message to exchange with routingKey.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.channel.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.log.Debug().Str("routing_key", routingKey).Bytes("body", body).Msg("sent photo event")
	return nil
}

// ConsumePhotoEvents registers a consumer on the photo queue and hands every
// delivery to messageHandler in a background goroutine. A nil error acks the
// message; any other error nacks it with requeue.
func (c *Client) ConsumePhotoEvents(messageHandler func(msg amqp.Delivery) error) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(
		PhotoQueue, // queue
		"",         // consumer tag
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Str("queue", PhotoQueue).Msg("waiting for photo events")

	go func() {
		for msg := range msgs {
			if err := messageHandler(msg); err != nil {
				c.log.Error().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Msg("error processing message")
				if requeueErr := msg.Nack(false, true); requeueErr != nil {
					c.log.Error().Err(requeueErr).Uint64("delivery_tag", msg.DeliveryTag).Msg("error nacking message")
				}
				continue
			}
			if ackErr := msg.Ack(false); ackErr != nil {
				c.log.Error().Err(ackErr).Uint64("delivery_tag", msg.DeliveryTag).Msg("error acking message")
			}
		}
	}()

	return nil
}
