package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Publisher is the part of *amqp.Channel the event publisher needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AttendancePublisher publishes session and attendance events to the message
// bus. It satisfies notifier.Notifier.
type AttendancePublisher struct {
	mu      sync.Mutex
	channel Publisher
	cfg     *config.RabbitMQConfig
}

func NewAttendancePublisher(cfg *config.Configuration, channel Publisher) *AttendancePublisher {
	return &AttendancePublisher{
		channel: channel,
		cfg:     &cfg.Queue.RabbitMQ,
	}
}

// RoutingKey is <routing-key>.<event type>, e.g. attendance.session.rotated.
func (p *AttendancePublisher) RoutingKey(eventType string) string {
	if p.cfg.RoutingKey == "" {
		return eventType
	}
	return p.cfg.RoutingKey + "." + eventType
}

func (p *AttendancePublisher) Notify(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := p.RoutingKey(event.Type)

	p.mu.Lock()
	err = p.channel.Publish(
		p.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	p.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Error("Failed to publish attendance event")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  event.SessionID,
		"event":       event.Type,
		"exchange":    p.cfg.Exchange,
		"routing_key": routingKey,
	}).Debug("Attendance event published")

	return nil
}
