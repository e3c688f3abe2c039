package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Dispatcher queues events and delivers them to every target on a background
// worker. Notify never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	targets []Notifier
	queue   chan models.Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(queueSize int, timeout time.Duration, targets ...Notifier) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		targets: targets,
		queue:   make(chan models.Event, queueSize),
		timeout: timeout,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.queue {
			d.deliver(event)
		}
	}()
}

func (d *Dispatcher) Notify(_ context.Context, event models.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		logrus.WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"event":      event.Type,
		}).Warn("Dispatcher closed, dropping event")
		return nil
	}

	select {
	case d.queue <- event:
	default:
		logrus.WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"event":      event.Type,
			"queue_size": cap(d.queue),
		}).Warn("Notification queue full, dropping event")
	}
	return nil
}

// Close stops accepting events, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) deliver(event models.Event) {
	for _, target := range d.targets {
		if err := d.deliverOne(target, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"event":      event.Type,
				"target":     fmt.Sprintf("%T", target),
			}).Error("Failed to deliver notification")
		}
	}
}

func (d *Dispatcher) deliverOne(target Notifier, event models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return target.Notify(ctx, event)
}
