package notify

import (
	"time"

	"github.com/MrEthical07/lmsauth"
)

// Message is the payload published for a notification.
type Message struct {
	Purpose   lmsauth.NotificationPurpose `json:"purpose"`
	UserID    string                      `json:"user_id"`
	Email     string                      `json:"email"`
	FirstName string                      `json:"first_name,omitempty"`
	Token     string                      `json:"token"`
	IssuedAt  time.Time                   `json:"issued_at"`
}

func newMessage(n lmsauth.Notification, now time.Time) Message {
	m := Message{Purpose: n.Purpose, Token: n.TokenValue, IssuedAt: now}
	if n.User != nil {
		m.UserID = n.User.ID
		m.Email = n.User.Email
		m.FirstName = n.User.FirstName
	}
	return m
}
