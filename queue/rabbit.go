// Package queue implements the RabbitMQ event bus for dependency graph
// mutations. Mutation events go to the dependencies topic exchange keyed
// by event kind; recalculation requests go to the system exchange.
//
// Publication is fire-and-forget: the bus logs failures and callers never
// roll back a committed mutation because an event could not be delivered.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/config"
)

const (
	// DependenciesExchange carries dependency mutation events, routing key
	// dependency.{created,updated,deleted}.
	DependenciesExchange = "dependencies"

	// SystemExchange carries cross-service signals such as critical path
	// recalculation requests.
	SystemExchange = "system"

	// RecalcRoutingKey is the routing key for recalculation requests on the
	// system exchange.
	RecalcRoutingKey = "critical_path.recalculate"
)

// EventBus publishes dependency graph events to RabbitMQ. It implements
// deps.Publisher.
type EventBus struct {
	connection AMQPConnection
	channel    AMQPChannel
}

// NewEventBus connects to RabbitMQ and declares the exchanges.
func NewEventBus(cfg config.RabbitMQConfig) (*EventBus, error) {
	return NewEventBusWithDialer(cfg, &RealAMQPDialer{})
}

// NewEventBusWithDialer creates an event bus with an injected dialer;
// used by tests.
func NewEventBusWithDialer(cfg config.RabbitMQConfig, dialer AMQPDialer) (*EventBus, error) {
	conn, err := dialer.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	for _, exchange := range []string{DependenciesExchange, SystemExchange} {
		err = ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // auto-delete
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	return &EventBus{connection: conn, channel: ch}, nil
}

// PublishDependencyEvent publishes a mutation event to the dependencies
// exchange. Failures are logged and returned but must not fail the
// originating mutation.
func (b *EventBus) PublishDependencyEvent(event common.DependencyEvent) error {
	routingKey := "dependency." + string(event.Kind)
	if err := b.publish(DependenciesExchange, routingKey, event); err != nil {
		common.Logger.WithFields(map[string]interface{}{
			"dependency_id": event.DependencyID,
			"tenant_id":     event.TenantID,
			"routing_key":   routingKey,
		}).WithError(err).Error("failed to publish dependency event")
		return err
	}

	common.Logger.WithFields(map[string]interface{}{
		"dependency_id": event.DependencyID,
		"tenant_id":     event.TenantID,
		"routing_key":   routingKey,
	}).Debug("published dependency event")
	return nil
}

// PublishRecalcRequest publishes a critical path recalculation request to
// the system exchange. Delivery is at-most-once; consumers must be
// idempotent.
func (b *EventBus) PublishRecalcRequest(req common.RecalcRequest) error {
	if err := b.publish(SystemExchange, RecalcRoutingKey, req); err != nil {
		common.Logger.WithField("tenant_id", req.TenantID).WithError(err).
			Error("failed to publish recalculation request")
		return err
	}

	common.Logger.WithField("tenant_id", req.TenantID).Debug("published recalculation request")
	return nil
}

func (b *EventBus) publish(exchange, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = b.channel.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (b *EventBus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.connection != nil {
		b.connection.Close()
	}
	return nil
}
