package notify

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to a logger. It is meant for local
// development, where no mail pipeline exists.
type LogNotifier struct {
	logger *zap.Logger
	// IncludeToken logs the token value so a developer can complete the flow.
	IncludeToken bool
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(ctx context.Context, n lmsauth.Notification) error {
	m := newMessage(n, time.Now().UTC())
	fields := []zap.Field{
		zap.String("purpose", string(m.Purpose)),
		zap.String("user_id", m.UserID),
		zap.String("email", m.Email),
	}
	if l.IncludeToken {
		fields = append(fields, zap.String("token", m.Token))
	}
	l.logger.Info("notification", fields...)
	return nil
}
