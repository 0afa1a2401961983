package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"clinicq/internal/scheduler"
)

// TelegramSink posts the call-next card to the clinic's assistance chat.
// Sends are rate-limited to stay under the Telegram API budget.
type TelegramSink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramSink creates the sink. The limiter defaults to 20 messages
// per second with a small burst, matching the Telegram bot API budget.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSink{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

// PatientCalled sends the snapshot as a plain-text card.
func (s *TelegramSink) PatientCalled(ctx context.Context, p scheduler.CalledPatient) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, formatCard(p))
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatCard(p scheduler.CalledPatient) string {
	text := fmt.Sprintf("Token %d called\nVisit: %s\nPatient: %s", p.TokenNumber, p.VisitID, p.PatientID)
	if p.Department != "" {
		text += "\nDepartment: " + p.Department
	}
	if p.SymptomsSummary != "" {
		text += "\nSymptoms: " + p.SymptomsSummary
	}
	return text
}
