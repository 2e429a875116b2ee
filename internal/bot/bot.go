package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Foundryproject/Donna/internal/agenda"
	"github.com/Foundryproject/Donna/internal/db"
	"github.com/Foundryproject/Donna/internal/google"
	"github.com/Foundryproject/Donna/internal/metrics"
	"github.com/Foundryproject/Donna/internal/model"
	"github.com/Foundryproject/Donna/internal/reminder"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

const helpText = "Donna here 💚\nCommands:\n" +
	"/link — connect your Google Calendar\n" +
	"/today, /tomorrow — your agenda\n" +
	"/remind — pings before today's meetings\n" +
	"/timezone America/New_York — set your timezone"

// Bot routes inbound Telegram commands to the calendar assistant core.
type Bot struct {
	tg           telegramClient
	db           *db.DB
	calendar     *google.Client
	materializer *reminder.Materializer
	sender       *Sender
	logger       *zerolog.Logger
}

// New creates a bot backed by the real Telegram API.
func New(
	token string,
	debug bool,
	database *db.DB,
	calendar *google.Client,
	materializer *reminder.Materializer,
	logger *zerolog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return newBot(&realTelegramClient{api: api}, database, calendar, materializer, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	database *db.DB,
	calendar *google.Client,
	materializer *reminder.Materializer,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, database, calendar, materializer, logger)
}

func newBot(
	tg telegramClient,
	database *db.DB,
	calendar *google.Client,
	materializer *reminder.Materializer,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	return &Bot{
		tg:           tg,
		db:           database,
		calendar:     calendar,
		materializer: materializer,
		sender:       NewSender(tg, logger),
		logger:       logger,
	}, nil
}

// Sender returns the outbound notifier backed by this bot's Telegram client.
func (b *Bot) Sender() *Sender {
	return b.sender
}

// Start begins polling updates and handles commands until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Donna bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	l := zerolog.Ctx(ctx)
	l.Debug().
		Int64("chat_id", update.Message.Chat.ID).
		Str("text", update.Message.Text).
		Msg("Handling message")
	b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)

	// Route on the first token so "/timezone Europe/Berlin" matches but
	// "/timezonefoo" does not. Telegram appends "@botname" in groups.
	cmd := lower
	if i := strings.IndexAny(cmd, " \t\n"); i >= 0 {
		cmd = cmd[:i]
	}
	cmd, _, _ = strings.Cut(cmd, "@")

	switch {
	case cmd == "/start", cmd == "/help", lower == "help":
		metrics.IncCommand("help")
		b.reply(chatID, helpText)

	case cmd == "/link", lower == "link", lower == "link calendar", lower == "connect calendar":
		metrics.IncCommand("link")
		b.handleLink(ctx, chatID)

	case cmd == "/today", lower == "today", lower == "agenda", lower == "meetings":
		metrics.IncCommand("today")
		b.handleAgenda(ctx, chatID, 0)

	case cmd == "/tomorrow", lower == "tomorrow", lower == "tmrw":
		metrics.IncCommand("tomorrow")
		b.handleAgenda(ctx, chatID, 1)

	case cmd == "/timezone", cmd == "timezone":
		metrics.IncCommand("timezone")
		b.handleTimezone(ctx, chatID, text)

	case cmd == "/remind", lower == "remind", lower == "remind me", lower == "enable reminders":
		metrics.IncCommand("remind")
		b.handleRemind(ctx, chatID)

	default:
		metrics.IncCommand("unknown")
		b.reply(chatID, helpText)
	}
}

func (b *Bot) handleLink(ctx context.Context, chatID int64) {
	state := NewLinkState(identityFor(chatID))
	url := b.calendar.AuthURL(state)
	b.reply(chatID, "To link your Google Calendar, tap this:\n"+url+
		"\n\n(If asked, allow 'Calendar read-only')")
}

func (b *Bot) handleAgenda(ctx context.Context, chatID int64, dayOffset int) {
	identity := identityFor(chatID)
	user, err := b.db.GetOrCreateUser(ctx, identity)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if !user.Linked() {
		b.replyError(ctx, chatID, model.ErrNotLinked)
		return
	}

	loc, err := model.LoadLocation(user.Timezone)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	accessToken, err := b.calendar.RefreshAccessToken(ctx, identity, user.Credential)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	day := time.Now().In(loc).AddDate(0, 0, dayOffset)
	start, end := reminder.DayWindow(day)
	events, err := b.calendar.ListEvents(ctx, accessToken, start, end, user.Timezone)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	b.reply(chatID, agenda.Render(day, events, loc))
}

func (b *Bot) handleTimezone(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		b.reply(chatID, "Usage: /timezone America/New_York")
		return
	}
	tzid := fields[1]

	// Stored as-is; a bad tzid surfaces on the next conversion.
	if err := b.db.SetTimezone(ctx, identityFor(chatID), tzid); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Timezone set to %s.", tzid))
}

func (b *Bot) handleRemind(ctx context.Context, chatID int64) {
	created, err := b.materializer.MaterializeToday(ctx, identityFor(chatID))
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	lead := int(b.materializer.Lead().Minutes())
	b.reply(chatID, fmt.Sprintf("Got it. I'll remind you %d minutes before %d meeting(s) today.", lead, created))
}

// replyError converts any failure into a best-effort user message. The
// inbound handler never crashes on an error.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	l := zerolog.Ctx(ctx)
	l.Error().Err(err).Int64("chat_id", chatID).Msg("command failed")

	switch {
	case errors.Is(err, model.ErrNotLinked):
		b.reply(chatID, "Your calendar isn't linked yet. Send /link to connect.")
	case errors.Is(err, model.ErrAuthExpired):
		b.reply(chatID, "Your calendar access has expired. Send /link to reconnect.")
	case errors.Is(err, model.ErrInvalidTimezone):
		b.reply(chatID, "Your timezone looks invalid. Send /timezone America/New_York to fix it.")
	case errors.Is(err, model.ErrUpstreamUnavailable):
		b.reply(chatID, "Couldn't reach your calendar right now. Please try again in a minute.")
	default:
		b.reply(chatID, "Something went wrong. Please try again.")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

// identityFor maps a Telegram chat to the opaque identity used as the
// storage key.
func identityFor(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// chatIDFor parses an identity back into a Telegram chat id.
func chatIDFor(identity string) (int64, error) {
	return strconv.ParseInt(identity, 10, 64)
}

// NewLinkState builds the OAuth state value carrying the identity.
func NewLinkState(identity string) string {
	return uuid.New().String() + ":" + identity
}

// ParseLinkState recovers the identity from an OAuth state value.
func ParseLinkState(state string) (string, error) {
	_, identity, ok := strings.Cut(state, ":")
	if !ok || identity == "" {
		return "", fmt.Errorf("malformed state %q", state)
	}
	return identity, nil
}
