package shopsdk

import (
	"context"
	"errors"
	"net/http"
)

// AuthService covers /api/auth: sign-in, tokens, MFA and sessions.
type AuthService struct{ c *Client }

// Login signs in with email and password and persists the credentials.
// Accounts with MFA enabled get a *MFARequiredError instead; nothing is
// stored until VerifyMFA succeeds.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	res, err := call[AuthResult](ctx, s.c, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      LoginRequest{Email: email, Password: password},
		noRefresh: true,
	})
	if err != nil {
		return nil, err
	}
	if res.RequiresMFA {
		return nil, &MFARequiredError{TempToken: res.TempToken}
	}
	if res.Token == "" {
		return nil, &ContractError{Path: "/auth/login", Err: errors.New("missing token")}
	}
	if err := s.c.storage.Save(ctx, Credentials{Token: res.Token, User: res.User}); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyMFA completes an MFA login challenge and persists the credentials.
func (s *AuthService) VerifyMFA(ctx context.Context, tempToken, code string) (*AuthResult, error) {
	res, err := call[AuthResult](ctx, s.c, request{
		method:    http.MethodPost,
		path:      "/auth/mfa/verify",
		body:      VerifyMFARequest{TempToken: tempToken, Code: code},
		noRefresh: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, &ContractError{Path: "/auth/mfa/verify", Err: errors.New("missing token")}
	}
	if err := s.c.storage.Save(ctx, Credentials{Token: res.Token, User: res.User}); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh forces a token refresh. Prefer Client.RefreshSession, which
// shares in-flight refreshes; this one reports the failure.
func (s *AuthService) Refresh(ctx context.Context) (*AuthResult, error) {
	creds, err := s.c.storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	res, err := call[AuthResult](ctx, s.c, request{
		method:    http.MethodPost,
		path:      "/auth/refresh",
		body:      refreshRequest{Token: creds.Token},
		noRefresh: true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.c.storage.Save(ctx, Credentials{Token: res.Token, User: res.User}); err != nil {
		return nil, err
	}
	return &res, nil
}

// Validate asks the backend whether the stored token is still good. A 401
// is reported as an invalid token, not an error.
func (s *AuthService) Validate(ctx context.Context) (*TokenValidation, error) {
	res, err := call[TokenValidation](ctx, s.c, request{
		method:    http.MethodGet,
		path:      "/auth/validate",
		noRefresh: true,
	})
	if IsStatus(err, http.StatusUnauthorized) {
		return &TokenValidation{Valid: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Me returns the current user's profile.
func (s *AuthService) Me(ctx context.Context) (*User, error) {
	u, err := call[User](ctx, s.c, request{method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout revokes the token server-side and clears local credentials. The
// local state is cleared even when the call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	err := callNoContent(ctx, s.c, request{
		method:    http.MethodPost,
		path:      "/auth/logout",
		noRefresh: true,
	})
	if clearErr := s.c.storage.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		return clearErr
	}
	return err
}

// RequestPasswordReset starts the e-mail reset flow.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPost,
		path:   "/auth/request-password-reset",
		body:   PasswordResetRequest{Email: email},
	})
}

// CreateSecureAdmin creates an administrator account using the bootstrap
// secret.
func (s *AuthService) CreateSecureAdmin(ctx context.Context, req CreateAdminRequest) (*User, error) {
	u, err := call[User](ctx, s.c, request{
		method: http.MethodPost,
		path:   "/auth/create-secure-admin",
		body:   req,
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetupMFA starts enrolment and returns the secret, QR payload and backup
// codes.
func (s *AuthService) SetupMFA(ctx context.Context) (*MFASetup, error) {
	res, err := call[MFASetup](ctx, s.c, request{method: http.MethodPost, path: "/auth/mfa/setup"})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// EnableMFA confirms enrolment with a code from the authenticator app.
func (s *AuthService) EnableMFA(ctx context.Context, code string) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPost,
		path:   "/auth/mfa/enable",
		body:   mfaCodeRequest{Token: code},
	})
}

// DisableMFA turns MFA off; it needs the password and a current code.
func (s *AuthService) DisableMFA(ctx context.Context, password, code string) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPost,
		path:   "/auth/mfa/disable",
		body:   DisableMFARequest{Password: password, Code: code},
	})
}

// Sessions lists the current user's signed-in sessions.
func (s *AuthService) Sessions(ctx context.Context) ([]AuthSession, error) {
	return call[[]AuthSession](ctx, s.c, request{method: http.MethodGet, path: "/auth/sessions"})
}

// RevokeSession signs out one session.
func (s *AuthService) RevokeSession(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodPost, path: "/auth/sessions/" + escape(id) + "/revoke"})
}

// RevokeAllSessions signs out every other session.
func (s *AuthService) RevokeAllSessions(ctx context.Context) error {
	return callNoContent(ctx, s.c, request{method: http.MethodPost, path: "/auth/sessions/revoke-all"})
}
