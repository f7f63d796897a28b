// Package scheduler runs the durable delayed actions: watch reminders and
// the final-photo push. Deadlines live in sqlite; the in-memory due sets
// are rebuilt from the rows at startup, so firings survive restarts.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadgenlab/funnelbot/internal/db"
	"github.com/leadgenlab/funnelbot/internal/events"
	"github.com/leadgenlab/funnelbot/internal/models"
)

// Scheduler errors.
var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
	ErrSchedulerNotRunning     = errors.New("scheduler not running")
	ErrNoActions               = errors.New("scheduler actions not set")
)

// Actions is the delivery surface the scheduler invokes when a deadline
// elapses. The funnel engine implements it.
type Actions interface {
	SendFirstFollowUp(ctx context.Context, participantID int64) error
	SendSecondFollowUp(ctx context.Context, participantID int64) error
	SendFinalPhoto(ctx context.Context, participantID int64) error
}

// Config contains scheduler configuration.
type Config struct {
	// ReminderInterval is how often reminder deadlines are checked.
	// Default: 1 minute.
	ReminderInterval time.Duration

	// FinalInterval is how often final-photo deadlines are checked.
	// Default: 5 minutes.
	FinalInterval time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ReminderInterval: 1 * time.Minute,
		FinalInterval:    5 * time.Minute,
	}
}

// Stats contains scheduler statistics.
type Stats struct {
	// Running indicates if the scheduler is active.
	Running bool

	// StartedAt is when the scheduler was started.
	StartedAt *time.Time

	// TrackedReminders is the current reminder due-set size.
	TrackedReminders int

	// TrackedFinals is the current final due-set size.
	TrackedFinals int

	// RemindersFired counts reminder halves delivered.
	RemindersFired int64

	// FinalsFired counts final photos delivered.
	FinalsFired int64

	// FinalsVoided counts finals retired without delivery because a
	// phone number had already been captured.
	FinalsVoided int64

	// Failures counts storage or delivery errors during passes.
	Failures int64

	// LastFiredAt is when the last action fired.
	LastFiredAt *time.Time
}

// Scheduler owns the timer due sets and the two polling loops.
type Scheduler struct {
	config       Config
	timers       *db.TimerRepository
	participants *db.ParticipantRepository
	eventLog     events.Repository
	logger       zerolog.Logger
	actions      Actions
	now          func() time.Time

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	reminders map[int64]*models.ReminderTimer
	finals    map[int64]*models.FinalTimer

	statsMu sync.RWMutex
	stats   Stats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler. Actions must be set with SetActions before
// Start; the engine and scheduler reference each other, so wiring happens
// in two steps.
func New(config Config, timers *db.TimerRepository, participants *db.ParticipantRepository, eventLog events.Repository, logger zerolog.Logger, opts ...Option) *Scheduler {
	if config.ReminderInterval <= 0 {
		config.ReminderInterval = DefaultConfig().ReminderInterval
	}
	if config.FinalInterval <= 0 {
		config.FinalInterval = DefaultConfig().FinalInterval
	}

	s := &Scheduler{
		config:       config,
		timers:       timers,
		participants: participants,
		eventLog:     eventLog,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		now:          time.Now,
		reminders:    make(map[int64]*models.ReminderTimer),
		finals:       make(map[int64]*models.FinalTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetActions installs the delivery surface.
func (s *Scheduler) SetActions(a Actions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = a
}

// Start loads the persisted timers into the due sets and begins the two
// polling loops. Fired flags are resumed as recorded, never reset, so an
// already-delivered half does not fire again after a restart.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	if s.actions == nil {
		return ErrNoActions
	}

	if err := s.resumeLocked(ctx); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	now := s.now().UTC()
	s.statsMu.Lock()
	s.stats.Running = true
	s.stats.StartedAt = &now
	s.stats.TrackedReminders = len(s.reminders)
	s.stats.TrackedFinals = len(s.finals)
	s.statsMu.Unlock()

	s.logger.Info().
		Int("reminders", len(s.reminders)).
		Int("finals", len(s.finals)).
		Dur("reminder_interval", s.config.ReminderInterval).
		Dur("final_interval", s.config.FinalInterval).
		Msg("scheduler starting")

	s.wg.Add(2)
	go s.runReminderLoop()
	go s.runFinalLoop()
	return nil
}

// Stop halts the polling loops and waits for any in-flight pass.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.logger.Info().Msg("scheduler stopping")
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *Scheduler) resumeLocked(ctx context.Context) error {
	reminders, err := s.timers.ListReminders(ctx)
	if err != nil {
		return err
	}
	for _, t := range reminders {
		if t.Complete() {
			continue
		}
		s.reminders[t.ParticipantID] = t
	}

	finals, err := s.timers.ListPendingFinals(ctx)
	if err != nil {
		return err
	}
	for _, t := range finals {
		s.finals[t.ParticipantID] = t
	}
	return nil
}

// TrackReminder registers an already-persisted reminder timer.
func (s *Scheduler) TrackReminder(t *models.ReminderTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.reminders[t.ParticipantID] = &cp
	s.updateTrackedStats()
}

// TrackFinal registers an already-persisted final timer.
func (s *Scheduler) TrackFinal(t *models.FinalTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.finals[t.ParticipantID] = &cp
	s.updateTrackedStats()
}

// CancelReminder retires a reminder before it fires: the row is deleted
// and the due-set entry dropped. Cancelling an absent timer is a no-op.
func (s *Scheduler) CancelReminder(ctx context.Context, participantID int64) error {
	if err := s.timers.DeleteReminder(ctx, participantID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.reminders, participantID)
	s.updateTrackedStats()
	s.mu.Unlock()
	return nil
}

// RearmSecond replaces the participant's reminder with one carrying a
// fresh second deadline. The first half is recorded as spent so only the
// second check remains pending.
func (s *Scheduler) RearmSecond(ctx context.Context, participantID int64, deadline time.Time) error {
	if err := s.timers.RearmSecond(ctx, participantID, deadline); err != nil {
		return err
	}
	d := deadline.UTC()
	s.mu.Lock()
	s.reminders[participantID] = &models.ReminderTimer{
		ParticipantID:  participantID,
		SecondDeadline: &d,
		FirstFired:     true,
	}
	s.updateTrackedStats()
	s.mu.Unlock()
	return nil
}

// CancelFinal retires a pending final timer.
func (s *Scheduler) CancelFinal(ctx context.Context, participantID int64) error {
	if err := s.timers.DeleteFinal(ctx, participantID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.finals, participantID)
	s.updateTrackedStats()
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) runReminderLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CheckReminders(s.ctx)
		}
	}
}

func (s *Scheduler) runFinalLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FinalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CheckFinals(s.ctx)
		}
	}
}

// CheckReminders runs one reminder deadline pass. Both halves are
// checked in the same pass, so a timer whose deadlines both elapsed
// while the process was down delivers both follow-ups in order. A
// failure on one participant never blocks the rest.
func (s *Scheduler) CheckReminders(ctx context.Context) {
	now := s.now().UTC()
	for _, id := range s.dueReminderIDs(now) {
		t, ok := s.reminderEntry(id)
		if !ok {
			continue
		}
		if t.FirstDue(now) {
			s.fireReminderHalf(ctx, id, "first")
			t, ok = s.reminderEntry(id)
			if !ok {
				continue
			}
		}
		if t.SecondDue(now) {
			s.fireReminderHalf(ctx, id, "second")
		}
	}
}

func (s *Scheduler) dueReminderIDs(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.reminders))
	for id, t := range s.reminders {
		if t.FirstDue(now) || t.SecondDue(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Scheduler) reminderEntry(id int64) (models.ReminderTimer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.reminders[id]
	if !ok {
		return models.ReminderTimer{}, false
	}
	return *t, true
}

// fireReminderHalf marks the half fired in the store first; only the
// writer that flips the flag delivers, so a concurrent cancel or re-arm
// wins cleanly and at most one follow-up goes out per half.
func (s *Scheduler) fireReminderHalf(ctx context.Context, id int64, half string) {
	var (
		won bool
		err error
	)
	if half == "first" {
		won, err = s.timers.MarkFirstFired(ctx, id)
	} else {
		won, err = s.timers.MarkSecondFired(ctx, id)
	}
	if err != nil {
		s.recordFailure()
		s.logger.Error().Err(err).Int64("participant_id", id).Str("half", half).Msg("mark reminder fired failed")
		return
	}
	if !won {
		// The row changed under us (cancelled, re-armed or already
		// fired); converge the due set on whatever the store holds.
		s.refreshReminder(ctx, id)
		return
	}

	if half == "first" {
		s.mu.Lock()
		if t, ok := s.reminders[id]; ok {
			t.FirstFired = true
		}
		s.mu.Unlock()
	} else {
		// The second half is the last one; retire the timer.
		if err := s.timers.DeleteReminder(ctx, id); err != nil {
			s.logger.Warn().Err(err).Int64("participant_id", id).Msg("retire reminder failed")
		}
		s.mu.Lock()
		delete(s.reminders, id)
		s.updateTrackedStats()
		s.mu.Unlock()
	}

	var aerr error
	if half == "first" {
		aerr = s.actions.SendFirstFollowUp(ctx, id)
	} else {
		aerr = s.actions.SendSecondFollowUp(ctx, id)
	}
	if aerr != nil {
		s.recordFailure()
		s.logger.Error().Err(aerr).Int64("participant_id", id).Str("half", half).Msg("follow-up delivery failed")
	}

	if s.eventLog != nil {
		if err := events.LogReminderFired(ctx, s.eventLog, id, half); err != nil {
			s.logger.Warn().Err(err).Int64("participant_id", id).Msg("event append failed")
		}
	}
	s.recordFired(&s.stats.RemindersFired)
	s.logger.Info().Int64("participant_id", id).Str("half", half).Msg("reminder fired")
}

func (s *Scheduler) refreshReminder(ctx context.Context, id int64) {
	t, err := s.timers.GetReminder(ctx, id)
	if errors.Is(err, db.ErrReminderNotFound) {
		s.mu.Lock()
		delete(s.reminders, id)
		s.updateTrackedStats()
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("participant_id", id).Msg("refresh reminder failed")
		return
	}
	s.mu.Lock()
	s.reminders[id] = t
	s.mu.Unlock()
}

// CheckFinals runs one final deadline pass. The participant row is
// re-read at fire time: a phone captured since scheduling voids the
// firing, the timer is marked sent and nothing is delivered.
func (s *Scheduler) CheckFinals(ctx context.Context) {
	now := s.now().UTC()
	for _, id := range s.dueFinalIDs(now) {
		s.fireFinal(ctx, id)
	}
}

func (s *Scheduler) dueFinalIDs(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.finals))
	for id, t := range s.finals {
		if t.Due(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Scheduler) fireFinal(ctx context.Context, id int64) {
	p, err := s.participants.Get(ctx, id)
	if err != nil {
		s.recordFailure()
		s.logger.Error().Err(err).Int64("participant_id", id).Msg("load participant failed")
		return
	}
	voided := p.Phone != ""

	won, err := s.timers.MarkFinalSent(ctx, id)
	if err != nil {
		s.recordFailure()
		s.logger.Error().Err(err).Int64("participant_id", id).Msg("mark final sent failed")
		return
	}
	s.mu.Lock()
	delete(s.finals, id)
	s.updateTrackedStats()
	s.mu.Unlock()
	if !won {
		return
	}

	if !voided {
		if err := s.actions.SendFinalPhoto(ctx, id); err != nil {
			s.recordFailure()
			s.logger.Error().Err(err).Int64("participant_id", id).Msg("final delivery failed")
		}
	}

	if s.eventLog != nil {
		if err := events.LogFinalFired(ctx, s.eventLog, id, voided); err != nil {
			s.logger.Warn().Err(err).Int64("participant_id", id).Msg("event append failed")
		}
	}
	if voided {
		s.recordFired(&s.stats.FinalsVoided)
	} else {
		s.recordFired(&s.stats.FinalsFired)
	}
	s.logger.Info().Int64("participant_id", id).Bool("voided", voided).Msg("final timer fired")
}

// updateTrackedStats mirrors the due-set sizes into stats. Callers hold
// s.mu.
func (s *Scheduler) updateTrackedStats() {
	s.statsMu.Lock()
	s.stats.TrackedReminders = len(s.reminders)
	s.stats.TrackedFinals = len(s.finals)
	s.statsMu.Unlock()
}

func (s *Scheduler) recordFired(counter *int64) {
	now := s.now().UTC()
	s.statsMu.Lock()
	*counter++
	s.stats.LastFiredAt = &now
	s.statsMu.Unlock()
}

func (s *Scheduler) recordFailure() {
	s.statsMu.Lock()
	s.stats.Failures++
	s.statsMu.Unlock()
}
