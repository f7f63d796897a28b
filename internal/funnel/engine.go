// Package funnel implements the conversational state machine: it consumes
// transport updates, advances participants through the questionnaire and
// follow-up stages, and arms the delayed-action timers.
package funnel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/leadgenlab/funnelbot/internal/config"
	"github.com/leadgenlab/funnelbot/internal/db"
	"github.com/leadgenlab/funnelbot/internal/events"
	"github.com/leadgenlab/funnelbot/internal/models"
	"github.com/leadgenlab/funnelbot/internal/telegram"
)

// TimerScheduler is the delayed-action surface the engine drives. Track
// calls register an already-persisted timer row with the running
// scheduler; CancelReminder and RearmSecond mutate both the row and the
// in-memory due set.
type TimerScheduler interface {
	TrackReminder(t *models.ReminderTimer)
	TrackFinal(t *models.FinalTimer)
	CancelReminder(ctx context.Context, participantID int64) error
	RearmSecond(ctx context.Context, participantID int64, deadline time.Time) error
}

// Engine is the funnel core. It is driven from a single update pump, so
// handlers run serially; all durable writes happen before the deliveries
// they motivate.
type Engine struct {
	cfg          *config.Config
	db           *db.DB
	participants *db.ParticipantRepository
	timers       *db.TimerRepository
	messages     *db.MessageRefRepository
	eventLog     *db.EventRepository
	snapshot     *db.Snapshot
	gateway      telegram.Gateway
	sched        TimerScheduler
	logger       zerolog.Logger

	now  func() time.Time
	draw func() models.Variant
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithVariantDraw overrides the content variant draw.
func WithVariantDraw(draw func() models.Variant) Option {
	return func(e *Engine) {
		e.draw = draw
	}
}

// NewEngine builds the funnel core on top of an opened database, a
// delivery gateway and a timer scheduler.
func NewEngine(cfg *config.Config, database *db.DB, gateway telegram.Gateway, sched TimerScheduler, logger zerolog.Logger, opts ...Option) *Engine {
	participants := db.NewParticipantRepository(database)
	e := &Engine{
		cfg:          cfg,
		db:           database,
		participants: participants,
		timers:       db.NewTimerRepository(database),
		messages:     db.NewMessageRefRepository(database),
		eventLog:     db.NewEventRepository(database),
		snapshot:     db.NewSnapshot(participants, cfg.SnapshotPath),
		gateway:      gateway,
		sched:        sched,
		logger:       logger.With().Str("component", "funnel").Logger(),
		now:          time.Now,
		draw:         drawVariant,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// drawVariant assigns mentor A with probability 0.6 and mentor B
// otherwise.
func drawVariant() models.Variant {
	if rand.Float64() < 0.6 {
		return models.VariantMentorA
	}
	return models.VariantMentorB
}

// HandleUpdate dispatches one transport update. Validation failures are
// answered with a corrective prompt and never mutate state; storage
// failures propagate to the caller.
func (e *Engine) HandleUpdate(ctx context.Context, u telegram.Update) error {
	var err error
	switch {
	case u.Message != nil && u.Message.Contact != nil:
		err = e.handleContact(ctx, u.Message)
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/start"):
		err = e.handleStart(ctx, u.Message)
	case u.Message != nil && u.Message.Text != "":
		err = e.handleText(ctx, u.Message)
	case u.CallbackQuery != nil:
		err = e.handleCallback(ctx, u.CallbackQuery)
	default:
		return nil
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.Prompt != "" {
			e.send(ctx, chatOf(u), verr.Prompt, nil)
		}
		e.logger.Debug().Str("field", verr.Field).Str("reason", verr.Reason).Msg("rejected input")
		return nil
	}
	return err
}

func chatOf(u telegram.Update) int64 {
	if u.Message != nil {
		return u.Message.Chat.ID
	}
	if u.CallbackQuery != nil && u.CallbackQuery.Message != nil {
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

func senderOf(m *telegram.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}

func (e *Engine) handleStart(ctx context.Context, m *telegram.Message) error {
	userID := senderOf(m)
	if e.cfg.IsAdmin(userID) {
		e.logger.Debug().Int64("user_id", userID).Msg("ignoring /start from admin")
		return nil
	}

	exists, err := e.participants.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return e.register(ctx, m)
	}

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p.State == models.StateCompleted {
		e.send(ctx, p.ID, msgAlreadyCompleted, nil)
		return nil
	}
	return e.resume(ctx, p)
}

func (e *Engine) register(ctx context.Context, m *telegram.Message) error {
	p := &models.Participant{
		ID:           senderOf(m),
		State:        models.StateNew,
		RegisteredAt: e.now().UTC(),
	}
	if m.From != nil {
		p.Username = m.From.Username
		p.FirstName = m.From.FirstName
		p.LastName = m.From.LastName
	}
	if err := e.participants.Create(ctx, p); err != nil {
		return err
	}
	if err := e.participants.UpdateState(ctx, p.ID, models.StateAwaitingName); err != nil {
		return err
	}
	e.logEvent(ctx, events.LogRegistered, p.ID)
	e.logger.Info().Int64("user_id", p.ID).Str("username", p.Username).Msg("participant registered")

	e.send(ctx, p.ID, msgWelcome, nil)
	e.send(ctx, p.ID, msgNameRequest, nil)
	e.writeSnapshot(ctx)
	return nil
}

// resume re-sends the prompt for the participant's current state so a
// restarted conversation picks up exactly where it stopped.
func (e *Engine) resume(ctx context.Context, p *models.Participant) error {
	// A participant past the name step with no stored name cannot be
	// addressed by later steps; fall back to asking again.
	if p.Name == "" && p.State != models.StateNew && p.State != models.StateAwaitingName {
		if err := e.participants.UpdateState(ctx, p.ID, models.StateAwaitingName); err != nil {
			return err
		}
		e.send(ctx, p.ID, msgNameRequest, nil)
		return nil
	}

	switch p.State {
	case models.StateNew:
		if err := e.participants.UpdateState(ctx, p.ID, models.StateAwaitingName); err != nil {
			return err
		}
		e.send(ctx, p.ID, msgNameRequest, nil)
	case models.StateAwaitingName:
		e.send(ctx, p.ID, msgNameRequest, nil)
	case models.StateQuestion1, models.StateQuestion2, models.StateQuestion3, models.StateQuestion4:
		e.sendQuestion(ctx, p, p.State.QuestionNumber())
	case models.StateAwaitingFirstCheck:
		e.send(ctx, p.ID, msgFollowUp1, optionKeyboard(prefixFollowUp1, followUp1Options))
	case models.StateAwaitingSecondCheck:
		e.send(ctx, p.ID, msgFollowUp2, optionKeyboard(prefixFollowUp2, followUp2Options))
	case models.StateAwaitingRating:
		e.send(ctx, p.ID, msgRatingRequest, nil)
	case models.StateAwaitingPhone:
		e.send(ctx, p.ID, msgPhoneRequest, &telegram.Keyboard{ContactLabel: contactButtonLabel})
	case models.StateAwaitingContactTime:
		e.send(ctx, p.ID, msgContactTimeQuestion, optionKeyboard(prefixContactTime, contactTimeOptions))
	}
	return nil
}

func (e *Engine) handleText(ctx context.Context, m *telegram.Message) error {
	userID := senderOf(m)
	if e.cfg.IsAdmin(userID) {
		return nil
	}
	state, err := e.participants.GetState(ctx, userID)
	if errors.Is(err, db.ErrParticipantNotFound) {
		e.logger.Debug().Int64("user_id", userID).Msg("text from unknown user")
		return nil
	}
	if err != nil {
		return err
	}

	switch state {
	case models.StateAwaitingName:
		return e.handleName(ctx, userID, m.Text)
	case models.StateAwaitingRating:
		return e.handleRating(ctx, userID, m.Text)
	default:
		e.logger.Debug().Int64("user_id", userID).Str("state", string(state)).Msg("ignoring free text")
		return nil
	}
}

func (e *Engine) handleName(ctx context.Context, userID int64, raw string) error {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < 2 {
		return &ValidationError{Field: "name", Reason: "shorter than 2 characters", Prompt: msgNameInvalid}
	}
	if err := e.participants.UpdateName(ctx, userID, name); err != nil {
		return err
	}

	variant, err := e.assignVariant(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.participants.UpdateState(ctx, userID, models.StateQuestion1); err != nil {
		return err
	}
	e.logEventState(ctx, userID, models.StateAwaitingName, models.StateQuestion1)

	e.send(ctx, userID, msgThreeSteps, nil)
	e.send(ctx, userID, msgVoiceInstruction, nil)
	media := e.cfg.VariantMedia(string(variant))
	e.sendMedia(ctx, userID, telegram.MediaRef{Kind: telegram.MediaPhoto, FileID: media.Photo}, "")
	e.sendMedia(ctx, userID, telegram.MediaRef{Kind: telegram.MediaVoice, FileID: media.Voice1}, "")
	if e.cfg.InstagramURL != "" {
		e.send(ctx, userID, msgInstagram, telegram.Inline(telegram.Button{Text: instagramButtonLabel, URL: e.cfg.InstagramURL}))
	}

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	e.sendQuestion(ctx, p, 1)
	e.writeSnapshot(ctx)
	return nil
}

// assignVariant draws the content variant exactly once; a concurrent or
// repeated draw keeps the first assignment.
func (e *Engine) assignVariant(ctx context.Context, userID int64) (models.Variant, error) {
	variant := e.draw()
	err := e.participants.SetVariant(ctx, userID, variant)
	if errors.Is(err, db.ErrVariantAssigned) {
		p, gerr := e.participants.Get(ctx, userID)
		if gerr != nil {
			return "", gerr
		}
		return p.Variant, nil
	}
	if err != nil {
		return "", err
	}
	e.logEvent(ctx, func(ctx context.Context, repo events.Repository, id int64) error {
		return events.LogVariantAssigned(ctx, repo, id, variant)
	}, userID)
	e.logger.Info().Int64("user_id", userID).Str("variant", string(variant)).Msg("variant assigned")
	return variant, nil
}

func (e *Engine) handleRating(ctx context.Context, userID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "rating", Reason: "empty", Prompt: msgRatingRequest}
	}

	deadline := e.now().UTC().Add(e.cfg.FinalPhotoDelay)
	timer := &models.FinalTimer{ParticipantID: userID, SendDeadline: deadline}
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.participants.UpdateStateTx(ctx, tx, userID, models.StateAwaitingPhone); err != nil {
			return err
		}
		return e.timers.UpsertFinalTx(ctx, tx, timer)
	})
	if err != nil {
		return err
	}
	if e.sched != nil {
		e.sched.TrackFinal(timer)
	}
	e.logEventState(ctx, userID, models.StateAwaitingRating, models.StateAwaitingPhone)
	e.logEvent(ctx, events.LogFinalScheduled, userID)

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	media := e.cfg.VariantMedia(string(p.Variant))
	e.send(ctx, userID, msgCourseIntro, nil)
	if e.cfg.Media.TestimonialVideo != "" {
		e.send(ctx, userID, msgTestimonialIntro, nil)
		e.sendMedia(ctx, userID, telegram.MediaRef{Kind: telegram.MediaVideo, FileID: e.cfg.Media.TestimonialVideo}, "")
	}
	if e.cfg.Media.SuccessStoriesVideo != "" {
		e.send(ctx, userID, msgSuccessStories, nil)
		e.sendMedia(ctx, userID, telegram.MediaRef{Kind: telegram.MediaVideo, FileID: e.cfg.Media.SuccessStoriesVideo}, "")
	}
	if media.Voice2 != "" {
		e.send(ctx, userID, msgImportantVoice, nil)
		e.sendMedia(ctx, userID, telegram.MediaRef{Kind: telegram.MediaVoice, FileID: media.Voice2}, "")
	}
	e.send(ctx, userID, msgPhoneRequest, &telegram.Keyboard{ContactLabel: contactButtonLabel})
	e.writeSnapshot(ctx)
	return nil
}

func (e *Engine) handleContact(ctx context.Context, m *telegram.Message) error {
	userID := senderOf(m)
	if e.cfg.IsAdmin(userID) {
		return nil
	}
	p, err := e.participants.Get(ctx, userID)
	if errors.Is(err, db.ErrParticipantNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.State != models.StateAwaitingPhone || p.Phone != "" {
		e.logger.Debug().Int64("user_id", userID).Str("state", string(p.State)).Msg("ignoring contact share")
		return nil
	}
	phone := strings.TrimSpace(m.Contact.PhoneNumber)
	if phone == "" {
		return &ValidationError{Field: "phone", Reason: "empty contact", Prompt: msgPhoneRequest}
	}

	if err := e.participants.SetPhone(ctx, userID, phone, e.now().UTC()); err != nil {
		return err
	}
	if err := e.participants.UpdateState(ctx, userID, models.StateAwaitingContactTime); err != nil {
		return err
	}
	e.logEvent(ctx, events.LogPhoneCaptured, userID)
	e.logEventState(ctx, userID, models.StateAwaitingPhone, models.StateAwaitingContactTime)
	e.logger.Info().Int64("user_id", userID).Msg("phone captured")

	e.send(ctx, userID, msgPhoneSaved, &telegram.Keyboard{Remove: true})
	e.send(ctx, userID, msgContactTimeQuestion, optionKeyboard(prefixContactTime, contactTimeOptions))
	e.writeSnapshot(ctx)
	return nil
}

func (e *Engine) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	userID := cb.From.ID
	if e.cfg.IsAdmin(userID) {
		return nil
	}
	cut := strings.LastIndexByte(cb.Data, '_')
	if cut <= 0 || cut == len(cb.Data)-1 {
		return &ValidationError{Field: "callback", Reason: "malformed data " + strconv.Quote(cb.Data)}
	}
	prefix := cb.Data[:cut]
	index, err := strconv.Atoi(cb.Data[cut+1:])
	if err != nil {
		return &ValidationError{Field: "callback", Reason: "non-numeric option in " + strconv.Quote(cb.Data)}
	}

	var messageID int64
	if cb.Message != nil {
		messageID = cb.Message.MessageID
	}

	state, err := e.participants.GetState(ctx, userID)
	if errors.Is(err, db.ErrParticipantNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch prefix {
	case prefixQuestion1, prefixQuestion2, prefixQuestion3, prefixQuestion4:
		n := int(prefix[1] - '0')
		return e.handleAnswer(ctx, userID, state, n, index, messageID)
	case prefixFollowUp1:
		return e.handleFirstCheck(ctx, userID, state, index, messageID)
	case prefixFollowUp2:
		return e.handleSecondCheck(ctx, userID, state, index, messageID)
	case prefixContactTime:
		return e.handleContactTime(ctx, userID, state, index, messageID)
	default:
		e.logger.Debug().Str("data", cb.Data).Msg("unknown callback prefix")
		return nil
	}
}

// handleAnswer applies the answer to question n. A press that does not
// match the current state is a stale or duplicate button and is dropped
// without any write.
func (e *Engine) handleAnswer(ctx context.Context, userID int64, state models.FunnelState, n, index int, messageID int64) error {
	expected, err := models.QuestionState(n)
	if err != nil {
		return err
	}
	if state != expected {
		e.logger.Debug().Int64("user_id", userID).Int("question", n).Str("state", string(state)).Msg("stale question button")
		return nil
	}
	options := questionOptions[n-1]
	if index < 0 || index >= len(options) {
		return &ValidationError{Field: "answer", Reason: fmt.Sprintf("option %d out of range for question %d", index, n)}
	}
	answer := options[index]

	if n == 4 {
		return e.completeRegistration(ctx, userID, answer, messageID)
	}

	next, err := models.QuestionState(n + 1)
	if err != nil {
		return err
	}
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.participants.SetAnswerTx(ctx, tx, userID, n, answer); err != nil {
			return err
		}
		return e.participants.UpdateStateTx(ctx, tx, userID, next)
	})
	if err != nil {
		return err
	}
	e.logEventState(ctx, userID, expected, next)

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	e.editQuestion(ctx, p, n+1, messageID)
	e.writeSnapshot(ctx)
	return nil
}

// completeRegistration finishes the questionnaire: it mints the invite
// link, then commits answer, link, state and the reminder timer in one
// transaction before any delivery.
func (e *Engine) completeRegistration(ctx context.Context, userID int64, answer string, messageID int64) error {
	link := e.mintInviteLink(ctx)
	now := e.now().UTC()
	first := now.Add(e.cfg.FirstReminderDelay)
	second := first.Add(e.cfg.SecondReminderDelay)
	timer := &models.ReminderTimer{
		ParticipantID:  userID,
		FirstDeadline:  &first,
		SecondDeadline: &second,
	}

	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.participants.SetAnswerTx(ctx, tx, userID, 4, answer); err != nil {
			return err
		}
		if err := e.participants.SetChannelLinkTx(ctx, tx, userID, link); err != nil {
			return err
		}
		if err := e.participants.UpdateStateTx(ctx, tx, userID, models.StateAwaitingFirstCheck); err != nil {
			return err
		}
		return e.timers.UpsertReminderTx(ctx, tx, timer)
	})
	if err != nil {
		return err
	}
	if e.sched != nil {
		e.sched.TrackReminder(timer)
	}
	e.logEventState(ctx, userID, models.StateQuestion4, models.StateAwaitingFirstCheck)
	e.logEvent(ctx, events.LogReminderScheduled, userID)
	e.logger.Info().Int64("user_id", userID).Msg("registration completed")

	if messageID != 0 {
		if err := e.gateway.DeleteMessage(ctx, userID, messageID); err != nil {
			e.logger.Warn().Err(err).Int64("user_id", userID).Msg("delete question message failed")
		}
	}
	if err := e.messages.Delete(ctx, userID, models.MessageRoleQuestion); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("drop question ref failed")
	}

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	e.send(ctx, userID, fmt.Sprintf(msgRegistrationSuccess, displayName(p)),
		telegram.Inline(telegram.Button{Text: courseButtonLabel, URL: link}))
	e.send(ctx, userID, msgWatchReminder, nil)
	e.writeSnapshot(ctx)
	return nil
}

func (e *Engine) handleFirstCheck(ctx context.Context, userID int64, state models.FunnelState, index int, messageID int64) error {
	if state != models.StateAwaitingFirstCheck {
		e.logger.Debug().Int64("user_id", userID).Str("state", string(state)).Msg("stale first-check button")
		return nil
	}
	switch index {
	case 0:
		return e.proceedToRating(ctx, userID, state, messageID)
	case 1:
		return e.deferSecondCheck(ctx, userID, messageID)
	default:
		return &ValidationError{Field: "first_check", Reason: fmt.Sprintf("option %d out of range", index)}
	}
}

func (e *Engine) handleSecondCheck(ctx context.Context, userID int64, state models.FunnelState, index int, messageID int64) error {
	if state != models.StateAwaitingSecondCheck {
		e.logger.Debug().Int64("user_id", userID).Str("state", string(state)).Msg("stale second-check button")
		return nil
	}
	if index != 0 {
		return &ValidationError{Field: "second_check", Reason: fmt.Sprintf("option %d out of range", index)}
	}
	return e.proceedToRating(ctx, userID, state, messageID)
}

// proceedToRating retires the reminder timer and asks for the course
// rating.
func (e *Engine) proceedToRating(ctx context.Context, userID int64, from models.FunnelState, messageID int64) error {
	if e.sched != nil {
		if err := e.sched.CancelReminder(ctx, userID); err != nil {
			e.logger.Warn().Err(err).Int64("user_id", userID).Msg("cancel reminder failed")
		}
	}
	if err := e.participants.UpdateState(ctx, userID, models.StateAwaitingRating); err != nil {
		return err
	}
	e.logEvent(ctx, events.LogReminderCancelled, userID)
	e.logEventState(ctx, userID, from, models.StateAwaitingRating)

	e.editOrSend(ctx, userID, messageID, msgRatingRequest, nil)
	e.writeSnapshot(ctx)
	return nil
}

// deferSecondCheck handles "not yet": the timer is replaced with a fresh
// second deadline and the state stays awaiting_first_check.
func (e *Engine) deferSecondCheck(ctx context.Context, userID int64, messageID int64) error {
	deadline := e.now().UTC().Add(e.cfg.SecondReminderDelay)
	if e.sched != nil {
		if err := e.sched.RearmSecond(ctx, userID, deadline); err != nil {
			return err
		}
	} else if err := e.timers.RearmSecond(ctx, userID, deadline); err != nil {
		return err
	}
	e.logEvent(ctx, events.LogReminderRearmed, userID)

	p, err := e.participants.Get(ctx, userID)
	if err != nil {
		return err
	}
	var kb *telegram.Keyboard
	if p.ChannelLink != "" {
		kb = telegram.Inline(telegram.Button{Text: courseButtonLabel, URL: p.ChannelLink})
	}
	e.editOrSend(ctx, userID, messageID, msgNoTimeResponse, kb)
	return nil
}

func (e *Engine) handleContactTime(ctx context.Context, userID int64, state models.FunnelState, index int, messageID int64) error {
	if state != models.StateAwaitingContactTime {
		e.logger.Debug().Int64("user_id", userID).Str("state", string(state)).Msg("stale contact-time button")
		return nil
	}
	if index < 0 || index >= len(contactTimeOptions) {
		return &ValidationError{Field: "contact_time", Reason: fmt.Sprintf("option %d out of range", index)}
	}

	if err := e.participants.SetContactTime(ctx, userID, contactTimeOptions[index]); err != nil {
		return err
	}
	if err := e.participants.UpdateState(ctx, userID, models.StateCompleted); err != nil {
		return err
	}
	e.logEventState(ctx, userID, models.StateAwaitingContactTime, models.StateCompleted)
	e.logEvent(ctx, events.LogCompleted, userID)
	e.logger.Info().Int64("user_id", userID).Str("window", contactTimeOptions[index]).Msg("funnel completed")

	e.editOrSend(ctx, userID, messageID, msgFinal, nil)
	e.writeSnapshot(ctx)
	return nil
}

// SendFirstFollowUp delivers the first watch check-in. Invoked by the
// scheduler after the first reminder deadline elapses.
func (e *Engine) SendFirstFollowUp(ctx context.Context, participantID int64) error {
	if err := e.participants.UpdateState(ctx, participantID, models.StateAwaitingFirstCheck); err != nil {
		return err
	}
	_, err := e.gateway.SendText(ctx, participantID, msgFollowUp1, optionKeyboard(prefixFollowUp1, followUp1Options))
	return err
}

// SendSecondFollowUp delivers the second watch check-in.
func (e *Engine) SendSecondFollowUp(ctx context.Context, participantID int64) error {
	if err := e.participants.UpdateState(ctx, participantID, models.StateAwaitingSecondCheck); err != nil {
		return err
	}
	_, err := e.gateway.SendText(ctx, participantID, msgFollowUp2, optionKeyboard(prefixFollowUp2, followUp2Options))
	return err
}

// SendFinalPhoto delivers the last-chance pitch with the contact
// keyboard. The scheduler has already confirmed no phone was captured.
func (e *Engine) SendFinalPhoto(ctx context.Context, participantID int64) error {
	kb := &telegram.Keyboard{ContactLabel: contactButtonLabel}
	if e.cfg.Media.FinalPhoto != "" {
		_, err := e.gateway.SendMedia(ctx, participantID,
			telegram.MediaRef{Kind: telegram.MediaPhoto, FileID: e.cfg.Media.FinalPhoto}, msgFinalPhotoCaption, kb)
		return err
	}
	_, err := e.gateway.SendText(ctx, participantID, msgFinalPhotoCaption, kb)
	return err
}

// mintInviteLink creates a single-use invite link, falling back to the
// configured static link when minting is unavailable or fails.
func (e *Engine) mintInviteLink(ctx context.Context) string {
	if e.cfg.CourseChannelID == 0 {
		return e.cfg.FallbackInviteURL
	}
	link, err := e.gateway.CreateSingleUseInviteLink(ctx, e.cfg.CourseChannelID)
	if err != nil {
		e.logger.Warn().Err(err).Msg("invite minting failed, using fallback link")
		return e.cfg.FallbackInviteURL
	}
	return link
}

// sendQuestion delivers question n as a fresh message and records its
// handle so the next answer can edit it in place.
func (e *Engine) sendQuestion(ctx context.Context, p *models.Participant, n int) {
	kb := optionKeyboard(questionPrefix(n), questionOptions[n-1])
	id, err := e.gateway.SendText(ctx, p.ID, questionText(p, n), kb)
	if err != nil {
		e.logger.Error().Err(err).Int64("user_id", p.ID).Int("question", n).Msg("send question failed")
		return
	}
	ref := &models.MessageRef{ParticipantID: p.ID, Role: models.MessageRoleQuestion, MessageID: id}
	if err := e.messages.Save(ctx, ref); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", p.ID).Msg("save question ref failed")
	}
}

// editQuestion rewrites the questionnaire message to question n, sending
// a fresh message when no editable handle survives.
func (e *Engine) editQuestion(ctx context.Context, p *models.Participant, n int, messageID int64) {
	if messageID == 0 {
		if ref, err := e.messages.Get(ctx, p.ID, models.MessageRoleQuestion); err == nil {
			messageID = ref.MessageID
		}
	}
	if messageID == 0 {
		e.sendQuestion(ctx, p, n)
		return
	}
	kb := optionKeyboard(questionPrefix(n), questionOptions[n-1])
	if err := e.gateway.EditText(ctx, p.ID, messageID, questionText(p, n), kb); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", p.ID).Int("question", n).Msg("edit question failed")
		e.sendQuestion(ctx, p, n)
		return
	}
	ref := &models.MessageRef{ParticipantID: p.ID, Role: models.MessageRoleQuestion, MessageID: messageID}
	if err := e.messages.Save(ctx, ref); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", p.ID).Msg("save question ref failed")
	}
}

func (e *Engine) editOrSend(ctx context.Context, chatID, messageID int64, text string, kb *telegram.Keyboard) {
	if messageID != 0 {
		err := e.gateway.EditText(ctx, chatID, messageID, text, kb)
		if err == nil {
			return
		}
		e.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("edit failed, sending instead")
	}
	e.send(ctx, chatID, text, kb)
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, kb *telegram.Keyboard) {
	if _, err := e.gateway.SendText(ctx, chatID, text, kb); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (e *Engine) sendMedia(ctx context.Context, chatID int64, media telegram.MediaRef, caption string) {
	if media.FileID == "" {
		return
	}
	if _, err := e.gateway.SendMedia(ctx, chatID, media, caption, nil); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", chatID).Str("kind", string(media.Kind)).Msg("send media failed")
	}
}

func (e *Engine) writeSnapshot(ctx context.Context) {
	if e.snapshot == nil || !e.snapshot.Enabled() {
		return
	}
	if err := e.snapshot.Write(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("snapshot write failed")
	}
}

// Audit logging never blocks a transition; failures are logged and the
// update proceeds.
func (e *Engine) logEvent(ctx context.Context, fn func(context.Context, events.Repository, int64) error, userID int64) {
	if err := fn(ctx, e.eventLog, userID); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("event append failed")
	}
}

func (e *Engine) logEventState(ctx context.Context, userID int64, from, to models.FunnelState) {
	if err := events.LogStateChanged(ctx, e.eventLog, userID, from, to); err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("event append failed")
	}
}

func questionPrefix(n int) string {
	return fmt.Sprintf("q%d", n)
}

func questionText(p *models.Participant, n int) string {
	if n == 1 {
		if name := displayName(p); name != "" {
			return fmt.Sprintf(question1, name)
		}
		return strings.ToUpper(question1Bare[:1]) + question1Bare[1:]
	}
	return questionTexts[n-1]
}

func displayName(p *models.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.FirstName
}

func optionKeyboard(prefix string, options []string) *telegram.Keyboard {
	kb := &telegram.Keyboard{}
	for i, opt := range options {
		kb.Inline = append(kb.Inline, []telegram.Button{{
			Text: opt,
			Data: fmt.Sprintf("%s_%d", prefix, i),
		}})
	}
	return kb
}
