// Package notify delivers task events to users on a best-effort basis.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/adanyl0v/go-task-tracker/internal/models"
)

var ErrClosed = errors.New("dispatcher closed")

type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Sender hands an event to a delivery channel.
type Sender interface {
	Send(ctx context.Context, user *models.User, event models.Event) error
}

// Dispatcher queues events and delivers them from a fixed pool of workers.
// Events for inactive users and events the user opted out of are dropped.
type Dispatcher struct {
	logger  zerolog.Logger
	users   UserLookup
	sender  Sender
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan models.Event

	lookups singleflight.Group
	group   *errgroup.Group
}

func NewDispatcher(
	logger zerolog.Logger,
	users UserLookup,
	sender Sender,
	workers int,
	queueSize int,
) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		logger:  logger,
		users:   users,
		sender:  sender,
		workers: workers,
		queue:   make(chan models.Event, queueSize),
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for range d.workers {
		g.Go(func() error {
			for event := range d.queue {
				d.deliver(ctx, event)
			}
			return nil
		})
	}
	d.group = g

	d.logger.Info().
		Int("workers", d.workers).
		Int("queue_size", cap(d.queue)).
		Msg("started notification dispatcher")
}

// Notify enqueues the event without blocking. A full queue drops the event.
func (d *Dispatcher) Notify(_ context.Context, event models.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn().
			Str("type", string(event.Type)).
			Err(ErrClosed).
			Msg("dropped notification")
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn().
			Str("type", string(event.Type)).
			Str("target_user_id", event.TargetUserID).
			Msg("notification queue is full, dropped event")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

func (d *Dispatcher) lookup(ctx context.Context, id string) (*models.User, error) {
	v, err, _ := d.lookups.Do(id, func() (any, error) {
		return d.users.GetUserByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

func (d *Dispatcher) deliver(ctx context.Context, event models.Event) {
	user, err := d.lookup(ctx, event.TargetUserID)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("target_user_id", event.TargetUserID).
			Msg("failed to look up notification target")
		return
	}

	if !user.IsActive || !user.NotificationPreferences.Allows(event.Type) {
		d.logger.Debug().
			Str("type", string(event.Type)).
			Str("target_user_id", user.ID).
			Msg("skipped notification")
		return
	}

	err = d.sender.Send(ctx, user, event)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("type", string(event.Type)).
			Str("target_user_id", user.ID).
			Msg("failed to send notification")
	}
}

// LogSender writes every notification as a structured log line.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, user *models.User, event models.Event) error {
	s.logger.Info().
		Str("type", string(event.Type)).
		Str("target_user_id", user.ID).
		Str("task_id", event.TaskID).
		Str("source_actor_id", event.SourceActorID).
		Str("message", event.Message).
		Time("created_at", event.CreatedAt).
		Msg("notification")
	return nil
}
