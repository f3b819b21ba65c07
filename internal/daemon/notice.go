package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/telegram"
)

const startupNoticeText = "🟢 Service is online!"

// noticeClient sends and later retracts the startup notice.
type noticeClient interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) (telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID string, messageID int64) error
}

func (d *Daemon) sendStartupNotice(ctx context.Context) {
	tg := d.GetConfig().Telegram
	postStartupNotice(ctx, d.bot, tg.ChatID, tg.StartupNoticeTTL, d.logger)
}

// postStartupNotice sends the online notice to chatID and deletes it after
// ttl. Failures are logged only.
func postStartupNotice(ctx context.Context, client noticeClient, chatID string, ttl time.Duration, logger *slog.Logger) {
	msg, err := client.SendMessage(ctx, chatID, startupNoticeText, "")
	if err != nil {
		logger.Warn("Failed to send startup notice", logfields.ChatID(chatID), logfields.Error(err))
		return
	}

	timer := time.NewTimer(ttl)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		// Still retract the notice on shutdown.
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		ctx = cleanup
	}

	if err := client.DeleteMessage(ctx, chatID, msg.MessageID); err != nil {
		logger.Debug("Failed to delete startup notice", logfields.ChatID(chatID), logfields.Error(err))
	}
}
