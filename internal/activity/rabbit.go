// internal/activity/rabbit.go
package activity

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"leadcrm/internal/metrics"
)

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	URL     string
}

func NewRabbitClient(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
	}, nil
}

func (r *RabbitClient) GetChannel() *amqp.Channel {
	return r.channel
}

func (r *RabbitClient) GetConnection() *amqp.Connection {
	return r.conn
}

func queueName(userID string) string {
	return fmt.Sprintf("leads_%s_activity", userID)
}

// DeclareQueue creates a tenant-specific durable activity queue with a DLQ
// for events that fail processing
func (r *RabbitClient) DeclareQueue(userID string) error {
	qName := queueName(userID)
	dlqName := qName + "_dlq"

	// 1. DLQ
	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	// 2. Main queue with DLQ binding
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		qName,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare activity queue: %w", err)
	}

	log.Printf("[Rabbit] Activity queues declared for tenant %s", userID)
	return nil
}

// PublishEvent sends a lead activity event to the owner's queue
func (r *RabbitClient) PublishEvent(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	qName := queueName(ev.UserID.String())
	err = r.channel.Publish(
		"",    // default exchange
		qName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", qName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

func (r *RabbitClient) UpdateQueueDepth(userID string) {
	q, err := r.channel.QueueInspect(queueName(userID))
	if err != nil {
		log.Printf("[Rabbit] Failed to inspect queue for %s: %v", userID, err)
		return
	}

	metrics.QueueDepth.WithLabelValues(userID).Set(float64(q.Messages))
}
