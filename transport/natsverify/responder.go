// Package natsverify answers access-token verification requests from other
// services over NATS request/reply.
package natsverify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultTimeout = 2 * time.Second

// Validator is satisfied by *lmsauth.Engine.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*lmsauth.AccessClaims, error)
}

type request struct {
	Token string `json:"token"`
}

type response struct {
	OK       bool     `json:"ok"`
	UserID   string   `json:"user_id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	OrgID    string   `json:"org_id,omitempty"`
	BranchID string   `json:"branch_id,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type Responder struct {
	validator Validator
	logger    *zap.Logger
	timeout   time.Duration
	respondFn func(msg *nats.Msg, resp response)

	sub *nats.Subscription
}

func NewResponder(v Validator, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Responder{validator: v, logger: logger.Named("natsverify"), timeout: defaultTimeout}
	r.respondFn = r.respond
	return r
}

// Subscribe joins queue on subject so several instances share the load.
func (r *Responder) Subscribe(conn *nats.Conn, subject, queue string) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	sub, err := conn.QueueSubscribe(subject, queue, r.handle)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

func (r *Responder) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

func (r *Responder) handle(msg *nats.Msg) {
	var req request
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Token == "" {
		r.respondFn(msg, response{Error: "invalid_payload"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	claims, err := r.validator.ValidateAccess(ctx, req.Token)
	if err != nil {
		r.respondFn(msg, response{Error: string(lmsauth.AsAuthError(err).Kind)})
		return
	}
	r.respondFn(msg, response{
		OK:       true,
		UserID:   claims.Subject,
		Email:    claims.Email,
		Roles:    claims.Roles,
		OrgID:    claims.OrgID,
		BranchID: claims.BranchID,
	})
}

func (r *Responder) respond(msg *nats.Msg, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("encode response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Warn("respond failed", zap.Error(err))
	}
}
