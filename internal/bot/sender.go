package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers outbound texts by identity, paced under the Telegram
// bot-wide limit of ~30 messages per second. Pacing only; a failed send
// is never retried.
type Sender struct {
	tg      telegramClient
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewSender creates a rate-limited outbound sender.
func NewSender(tg telegramClient, logger *zerolog.Logger) *Sender {
	return &Sender{
		tg:      tg,
		limiter: rate.NewLimiter(rate.Limit(25), 25),
		logger:  logger,
	}
}

// Send delivers text to the user behind identity.
func (s *Sender) Send(ctx context.Context, identity, text string) error {
	chatID, err := chatIDFor(identity)
	if err != nil {
		return fmt.Errorf("bad identity %q: %w", identity, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if _, err := s.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
