package authcore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/halcyonlabs/authcore/internal"
	"github.com/halcyonlabs/authcore/token"
)

// loginState tracks the orchestrator through one attempt. The terminal
// state is logged, and every terminal is audited before Login returns.
type loginState int

const (
	loginStateStart loginState = iota
	loginStateRateChecked
	loginStateCredentialChecked
	loginStateTwoFactorRequired
	loginStateTwoFactorVerified
	loginStateTokensIssued
	loginStateSessionCreated
	loginStateDone
	loginStateRejected
	loginStateError
)

func (s loginState) String() string {
	switch s {
	case loginStateStart:
		return "start"
	case loginStateRateChecked:
		return "rate_checked"
	case loginStateCredentialChecked:
		return "credential_checked"
	case loginStateTwoFactorRequired:
		return "two_factor_required"
	case loginStateTwoFactorVerified:
		return "two_factor_verified"
	case loginStateTokensIssued:
		return "tokens_issued"
	case loginStateSessionCreated:
		return "session_created"
	case loginStateDone:
		return "done"
	case loginStateRejected:
		return "rejected"
	case loginStateError:
		return "error"
	default:
		return "unknown"
	}
}

// Login runs the full authentication pipeline: rate limit, credential
// check with lockout, optional second factor, token issuance, session
// registration. When the account has two-factor enabled and the
// request carries no code, the result reports TwoFactorRequired and
// nothing was issued.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	state := loginStateStart
	defer func() {
		e.logger.Debug("login attempt finished", slog.String("state", state.String()))
	}()

	if err := e.checkRate(ctx, EndpointLogin); err != nil {
		state = loginStateRejected
		e.metricInc(MetricLoginRateLimited)
		return nil, err
	}
	state = loginStateRateChecked

	account, err := e.verifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		state = loginStateRejected
		e.metricInc(MetricLoginFailure)
		return nil, err
	}
	state = loginStateCredentialChecked

	if account.TwoFactorEnabled() {
		if req.TOTPCode == "" && req.BackupCode == "" {
			state = loginStateTwoFactorRequired
			e.metricInc(MetricTwoFactorRequired)
			return &LoginResult{
				TwoFactorRequired: true,
				Account:           account,
			}, nil
		}

		if err := e.verifySecondFactor(ctx, account, req.TOTPCode, req.BackupCode); err != nil {
			state = loginStateRejected
			e.metricInc(MetricLoginFailure)
			return nil, err
		}
		state = loginStateTwoFactorVerified
	}

	sessionKey := internal.NewOpaqueToken()

	access, _, err := e.tokens.Issue(token.KindAccess, account.ID, sessionKey, account.Role)
	if err != nil {
		state = loginStateError
		return nil, e.loginFailedInternal(ctx, account.ID, err)
	}
	refresh, _, err := e.tokens.Issue(token.KindRefresh, account.ID, sessionKey, account.Role)
	if err != nil {
		state = loginStateError
		return nil, e.loginFailedInternal(ctx, account.ID, err)
	}
	state = loginStateTokensIssued

	now := e.now().UTC()
	err = e.sessions.Create(ctx, &Session{
		Key:          sessionKey,
		UserID:       account.ID,
		IP:           clientIPFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	})
	if err != nil {
		state = loginStateError
		return nil, e.loginFailedInternal(ctx, account.ID, err)
	}
	state = loginStateSessionCreated

	if markErr := e.accounts.MarkLogin(ctx, account.ID, clientIPFromContext(ctx), now); markErr != nil {
		e.logger.Warn("login stamp failed",
			slog.String("user_id", account.ID),
			slog.String("error", markErr.Error()),
		)
	}

	state = loginStateDone
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditActionLogin, true, account.ID, nil, func() map[string]string {
		return map[string]string{"session_key": sessionKey}
	})

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionKey:   sessionKey,
		Account:      account,
	}, nil
}

func (e *Engine) loginFailedInternal(ctx context.Context, userID string, err error) error {
	wrapped := internalError(err)
	e.emitAudit(ctx, auditActionLogin, false, userID, wrapped, nil)
	return wrapped
}

// Logout revokes the presented tokens and terminates the session.
// Revocation failures are logged and swallowed: the caller is leaving
// either way, and the session-side teardown decides the outcome.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.revokeBestEffort(ctx, req.AccessToken)
	e.revokeBestEffort(ctx, req.RefreshToken)

	if req.SessionKey != "" && req.UserID != "" {
		err := e.sessions.Terminate(ctx, req.UserID, req.SessionKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			wrapped := internalError(err)
			e.emitAudit(ctx, auditActionLogout, false, req.UserID, wrapped, nil)
			return wrapped
		}
		e.metricInc(MetricSessionTerminated)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditActionLogout, true, req.UserID, nil, func() map[string]string {
		if req.SessionKey == "" {
			return nil
		}
		return map[string]string{"session_key": req.SessionKey}
	})
	return nil
}

func (e *Engine) revokeBestEffort(ctx context.Context, tokenStr string) {
	if tokenStr == "" {
		return
	}
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		// Expired or mangled tokens need no denylist entry.
		return
	}
	if err := e.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		e.logger.Warn("token revocation failed",
			slog.String("jti", claims.ID),
			slog.String("error", err.Error()),
		)
	}
}

// RevokeToken invalidates a single token ahead of its expiry. Revoking
// an already-expired token is a no-op, not an error.
func (e *Engine) RevokeToken(ctx context.Context, tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil
		}
		return ErrTokenMalformed
	}
	if err := e.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return internalError(err)
	}
	return nil
}
