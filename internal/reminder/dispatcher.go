package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Foundryproject/Donna/internal/agenda"
	"github.com/Foundryproject/Donna/internal/model"
)

// DispatcherConfig holds configuration for the dispatcher loop.
type DispatcherConfig struct {
	// PollInterval is how often to scan for due reminders.
	// Default: 30 seconds.
	PollInterval time.Duration

	// TickTimeout bounds a single tick. Default: 1 minute.
	TickTimeout time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		PollInterval: 30 * time.Second,
		TickTimeout:  time.Minute,
	}
}

// Dispatcher polls the reminder store for due reminders, delivers them
// and deletes the rows. Delivery is fire-and-forget: once a row is
// selected as due, it is deleted whether or not the send succeeded.
type Dispatcher struct {
	config   *DispatcherConfig
	store    ReminderStore
	users    UserStore
	notifier Notifier
	metrics  *Metrics
	logger   *zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// tickMu makes ticks single-flight: an overlapping tick would let
	// both scans select the same due row before either deletes it.
	tickMu sync.Mutex
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(
	config *DispatcherConfig,
	store ReminderStore,
	users UserStore,
	notifier Notifier,
	metrics *Metrics,
	logger *zerolog.Logger,
) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = time.Minute
	}

	return &Dispatcher{
		config:   config,
		store:    store,
		users:    users,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop()

	d.logger.Info().
		Dur("poll_interval", d.config.PollInterval).
		Msg("Reminder dispatcher started")
}

// Stop gracefully stops the dispatcher and waits for an in-flight tick.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()

	d.logger.Info().Msg("Reminder dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	// Run immediately on start
	d.Tick()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick scans for due reminders and drains the entire set. A tick that
// would overlap a still-running one is skipped, not queued. Errors on
// one reminder never abort the rest of the batch.
func (d *Dispatcher) Tick() {
	if !d.tickMu.TryLock() {
		d.logger.Warn().Msg("previous tick still running, skipping")
		if d.metrics != nil {
			d.metrics.IncTickSkipped()
		}
		return
	}
	defer d.tickMu.Unlock()

	started := d.now()
	ctx, cancel := context.WithTimeout(context.Background(), d.config.TickTimeout)
	defer cancel()

	due, err := d.store.DueBefore(ctx, started)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to query due reminders")
		return
	}
	if len(due) == 0 {
		return
	}

	d.logger.Debug().Int("count", len(due)).Msg("dispatching due reminders")
	for i := range due {
		d.dispatch(ctx, &due[i])
	}

	if d.metrics != nil {
		d.metrics.ObserveTickDuration(time.Since(started).Seconds())
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, r *model.Reminder) {
	loc := time.UTC
	if user, err := d.users.GetOrCreateUser(ctx, r.Identity); err != nil {
		d.logger.Error().Err(err).Str("identity", r.Identity).Msg("failed to load user for reminder")
	} else if l, err := model.LoadLocation(user.Timezone); err != nil {
		// A broken timezone must not wedge the row forever; fall back
		// to UTC for display and let the reminder drain.
		d.logger.Error().Err(err).Str("identity", r.Identity).Msg("falling back to UTC")
	} else {
		loc = l
	}

	text := fmt.Sprintf("⏰ Reminder: '%s' at %s.", r.Summary, agenda.FormatClock(r.StartUTC, loc))

	status := "sent"
	if err := d.notifier.Send(ctx, r.Identity, text); err != nil {
		// No retry. The reminder is lost.
		status = "failed"
		d.logger.Error().Err(err).
			Str("reminder_id", r.ID).
			Str("identity", r.Identity).
			Msg("failed to send reminder")
	}

	if err := d.store.DeleteReminder(ctx, r.ID); err != nil {
		d.logger.Error().Err(err).Str("reminder_id", r.ID).Msg("failed to delete reminder")
	}

	if d.metrics != nil {
		d.metrics.IncDispatched(status)
	}

	d.logger.Info().
		Str("reminder_id", r.ID).
		Str("identity", r.Identity).
		Str("status", status).
		Msg("reminder dispatched")
}
