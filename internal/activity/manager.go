// internal/activity/manager.go
package activity

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"leadcrm/internal/metrics"
	"leadcrm/internal/model"
	"leadcrm/internal/storage"
)

// Manager owns one consumer per tenant. Consumers are started when a user
// registers and recovered from the users table at boot.
type Manager struct {
	rabbitConn *amqp.Connection
	rabbit     *RabbitClient
	storage    *storage.Storage
	workers    int

	mu        sync.RWMutex
	consumers map[uuid.UUID]*consumer
}

func NewManager(rabbit *RabbitClient, st *storage.Storage, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		rabbitConn: rabbit.GetConnection(),
		rabbit:     rabbit,
		storage:    st,
		workers:    workers,
		consumers:  make(map[uuid.UUID]*consumer),
	}
}

// EnsureTenant declares the tenant's queues and spawns its consumer.
// Idempotent: a tenant with a running consumer is left alone.
func (m *Manager) EnsureTenant(userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.consumers[userID]; exists {
		return nil
	}

	if err := m.rabbit.DeclareQueue(userID.String()); err != nil {
		return err
	}

	c, err := startConsumer(m.rabbitConn, userID, m.workers, m.handleEvent)
	if err != nil {
		return err
	}
	m.consumers[userID] = c

	log.Printf("Activity consumer started for tenant %s", userID)
	return nil
}

// RemoveTenant stops the consumer and deletes the tenant's queue
func (m *Manager) RemoveTenant(userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.consumers[userID]
	if !exists {
		return nil
	}

	c.stop()

	if _, err := m.rabbit.GetChannel().QueueDelete(queueName(userID.String()), false, false, false); err != nil {
		log.Printf("Failed to delete activity queue for %s: %v", userID, err)
	}

	delete(m.consumers, userID)
	log.Printf("Activity consumer removed for tenant %s", userID)
	return nil
}

// ShutdownAll stops every consumer
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.consumers {
		c.stop()
		log.Printf("Stopped activity consumer for tenant %s", id)
	}
	m.consumers = make(map[uuid.UUID]*consumer)
}

// ListTenantIDs returns all tenants with a running consumer
func (m *Manager) ListTenantIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.consumers))
	for id := range m.consumers {
		ids = append(ids, id.String())
	}
	return ids
}

// handleEvent persists one activity event (callback from consumer workers).
// Create and update events also refresh the lead's last_activity_at.
func (m *Manager) handleEvent(userID uuid.UUID, msg amqp.Delivery) {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		log.Printf("Tenant %s: malformed activity event: %v", userID, err)
		msg.Nack(false, false) // to DLQ
		return
	}

	a := &model.Activity{
		ID:     uuid.New(),
		LeadID: ev.LeadID,
		UserID: ev.UserID,
		Kind:   ev.Kind,
		At:     ev.At,
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	if err := m.storage.InsertActivity(a); err != nil {
		log.Printf("Activity insert failed: %v", err)
		msg.Nack(false, false)
		return
	}

	if ev.Kind == model.ActivityCreated || ev.Kind == model.ActivityUpdated {
		if err := m.storage.TouchLastActivity(ev.LeadID, ev.UserID, a.At); err != nil {
			log.Printf("last_activity_at refresh failed: %v", err)
		}
	}

	msg.Ack(false)
	metrics.ActivityProcessed.WithLabelValues(userID.String()).Inc()
}

type eventHandler func(userID uuid.UUID, msg amqp.Delivery)

// consumer drains one tenant's activity queue with a small worker fan-out
type consumer struct {
	userID   uuid.UUID
	channel  *amqp.Channel
	tag      string
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func startConsumer(conn *amqp.Connection, userID uuid.UUID, workers int, handler eventHandler) (*consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("tenant %s: failed to open channel: %w", userID, err)
	}

	tag := fmt.Sprintf("activity-%s", userID)
	msgs, err := ch.Consume(
		queueName(userID.String()),
		tag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("tenant %s: failed to start consuming: %w", userID, err)
	}

	c := &consumer{
		userID:   userID,
		channel:  ch,
		tag:      tag,
		stopChan: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.drain(msgs, handler)
	}
	return c, nil
}

func (c *consumer) drain(msgs <-chan amqp.Delivery, handler eventHandler) {
	defer c.wg.Done()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handler(c.userID, msg)

		case <-c.stopChan:
			return
		}
	}
}

// stop cancels the subscription and waits for in-flight events
func (c *consumer) stop() {
	close(c.stopChan)
	_ = c.channel.Cancel(c.tag, false)
	c.wg.Wait()
	_ = c.channel.Close()
}
