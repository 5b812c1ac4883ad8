package devserver

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const backupCodeCount = 10

type tokenBody struct {
	Token string `json:"token"`
}

func (b tokenBody) Validate() shopsdk.ValidationErrors {
	if strings.TrimSpace(b.Token) == "" {
		return shopsdk.ValidationErrors{"token": "token is required"}
	}
	return nil
}

// mfaVerifyBody accepts a TOTP code or a backup code.
type mfaVerifyBody struct {
	TempToken string `json:"tempToken"`
	Token     string `json:"token"`
}

func (b mfaVerifyBody) Validate() shopsdk.ValidationErrors {
	errs := shopsdk.ValidationErrors{}
	if b.TempToken == "" {
		errs["tempToken"] = "temporary token is required"
	}
	if strings.TrimSpace(b.Token) == "" {
		errs["token"] = "code is required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// event appends to the audit log. Callers hold the write lock.
func (s *Server) event(r *http.Request, userID string, kind string, risk shopsdk.RiskLevel, desc string) {
	ev := shopsdk.SecurityEvent{
		EventType:   kind,
		RiskLevel:   risk,
		Description: desc,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
		CreatedAt:   s.now(),
	}
	if userID != "" {
		ev.UserID = &userID
	}
	s.st.record(ev)
}

// issue signs a token for se and makes it the session's current one.
func (s *Server) issue(a *account, se *session, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(a.ID, a.Email, string(a.Role), s.cfg.Issuer, s.cfg.TokenTTL, now)
	raw, err := s.tokens.Sign(claims)
	if err != nil {
		return "", err
	}
	se.jti = claims.ID
	return raw, nil
}

// signIn opens a session for a and writes the auth result. Callers hold
// the write lock.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, a *account) {
	now := s.now()
	se := &session{
		id:         newID(),
		userID:     a.ID,
		ip:         clientIP(r),
		userAgent:  r.UserAgent(),
		createdAt:  now,
		lastActive: now,
	}
	raw, err := s.issue(a, se, now)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to sign token", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.st.sessions.put(se.id, se)

	a.failed = 0
	a.LastLoginAt = &now
	s.event(r, a.ID, "login_success", shopsdk.RiskLow, "Signed in")

	u := a.User
	httpx.WriteData(w, http.StatusOK, shopsdk.AuthResult{Token: raw, User: &u})
}

// caller returns the authenticated account. Callers hold a lock.
func (s *Server) caller(r *http.Request) (*account, bool) {
	return s.st.accounts.get(httpx.UserID(r.Context()))
}

// currentSession finds the session of the request's bearer token.
func (s *Server) currentSession(r *http.Request) (*session, bool) {
	claims, err := jwtx.Peek(httpx.Token(r.Context()))
	if err != nil {
		return nil, false
	}
	return s.st.sessionByJTI(claims.ID)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req shopsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	log := slogx.FromContext(r.Context())
	now := s.now()

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	a, ok := s.st.accountByEmail(req.Email)
	if !ok {
		s.event(r, "", "login_failed", shopsdk.RiskMedium, "Unknown email "+req.Email)
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if a.locked(now) {
		httpx.WriteError(w, http.StatusLocked, "Account is locked, try again later")
		return
	}
	if err := cryptox.VerifyPassword(req.Password, a.passwordHash); err != nil {
		a.failed++
		s.event(r, a.ID, "login_failed", shopsdk.RiskMedium, "Wrong password")
		if a.failed >= lockoutThreshold {
			a.failed = 0
			a.lockedUntil = now.Add(lockoutDuration)
			s.event(r, a.ID, "account_locked", shopsdk.RiskHigh, "Too many failed logins")
			log.Warn("account locked", "user_id", a.ID)
		}
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !a.IsActive {
		httpx.WriteError(w, http.StatusForbidden, "Account is disabled")
		return
	}

	if a.MFAEnabled {
		temp, err := cryptox.RandomToken(cryptox.TokenBytes)
		if err != nil {
			log.Error("failed to create mfa challenge", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.st.challenges[cryptox.Fingerprint(temp)] = challenge{userID: a.ID, expires: now.Add(challengeTTL)}
		httpx.WriteData(w, http.StatusOK, shopsdk.AuthResult{RequiresMFA: true, TempToken: temp})
		return
	}

	s.signIn(w, r, a)
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyBody
	if !decode(w, r, &req) {
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	key := cryptox.Fingerprint(req.TempToken)
	ch, ok := s.st.challenges[key]
	if !ok || s.now().After(ch.expires) {
		delete(s.st.challenges, key)
		httpx.WriteError(w, http.StatusUnauthorized, "MFA session expired, sign in again")
		return
	}
	a, ok := s.st.accounts.get(ch.userID)
	if !ok || !a.IsActive {
		httpx.WriteError(w, http.StatusUnauthorized, "MFA session expired, sign in again")
		return
	}

	code := strings.TrimSpace(req.Token)
	switch {
	case shopsdk.IsMFACode(code) && totp.Validate(code, a.mfaSecret):
	case a.useBackupCode(code):
		s.event(r, a.ID, "mfa_backup_code_used", shopsdk.RiskMedium, "Signed in with a backup code")
	default:
		s.event(r, a.ID, "mfa_failed", shopsdk.RiskMedium, "Invalid MFA code")
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid MFA code")
		return
	}

	delete(s.st.challenges, key)
	s.signIn(w, r, a)
}

func (a *account) useBackupCode(code string) bool {
	fp := cryptox.Fingerprint(strings.ToUpper(code))
	used, ok := a.backupCodes[fp]
	if !ok || used {
		return false
	}
	a.backupCodes[fp] = true
	return true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenBody
	if !decode(w, r, &req) {
		return
	}
	claims, err := s.tokens.VerifyWithGrace(req.Token, s.cfg.RefreshGrace)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("refresh rejected", "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	se, ok := s.st.sessionByJTI(claims.ID)
	if !ok || se.userID != claims.Subject {
		httpx.WriteError(w, http.StatusUnauthorized, "Session has ended")
		return
	}
	a, ok := s.st.accounts.get(se.userID)
	if !ok || !a.IsActive {
		httpx.WriteError(w, http.StatusUnauthorized, "Session has ended")
		return
	}

	now := s.now()
	raw, err := s.issue(a, se, now)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to sign token", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	se.lastActive = now

	u := a.User
	httpx.WriteData(w, http.StatusOK, shopsdk.AuthResult{Token: raw, User: &u})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.caller(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	u := a.User
	httpx.WriteData(w, http.StatusOK, shopsdk.TokenValidation{Valid: true, User: &u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.caller(r)
	if !ok {
		notFound(w, "User")
		return
	}
	httpx.WriteData(w, http.StatusOK, a.User)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if se, ok := s.currentSession(r); ok {
		s.st.sessions.remove(se.id)
	}
	s.event(r, httpx.UserID(r.Context()), "logout", shopsdk.RiskLow, "Signed out")
	writeMessage(w, http.StatusOK, "Logged out")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req shopsdk.PasswordResetRequest
	if !decode(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	if a, ok := s.st.accountByEmail(req.Email); ok {
		s.event(r, a.ID, "password_reset_requested", shopsdk.RiskLow, "Password reset requested")
	}
	s.st.mu.Unlock()
	writeMessage(w, http.StatusOK, "If the account exists, a reset link has been sent")
}

func (s *Server) handleCreateSecureAdmin(w http.ResponseWriter, r *http.Request) {
	var req shopsdk.CreateAdminRequest
	if !decode(w, r, &req) {
		return
	}
	if s.cfg.AdminSecret == "" {
		httpx.WriteError(w, http.StatusForbidden, "Admin creation is disabled")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.SecretKey), []byte(s.cfg.AdminSecret)) != 1 {
		httpx.WriteError(w, http.StatusForbidden, "Invalid secret key")
		return
	}
	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, exists := s.st.accountByEmail(req.Email); exists {
		httpx.WriteError(w, http.StatusConflict, "Email already registered")
		return
	}
	a := s.newAccount(req.Name, req.Email, shopsdk.RoleAdmin, hash)
	s.event(r, a.ID, "admin_created", shopsdk.RiskHigh, "Administrator created with secret key")
	httpx.WriteData(w, http.StatusCreated, a.User)
}

// newAccount stores a fresh active account. Admins start with read access.
func (s *Server) newAccount(name, email string, role shopsdk.Role, hash string) *account {
	now := s.now()
	a := &account{
		User: shopsdk.User{
			ID:        newID(),
			Name:      strings.TrimSpace(name),
			Email:     strings.ToLower(strings.TrimSpace(email)),
			Role:      role,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	s.st.accounts.put(a.ID, a)
	if role == shopsdk.RoleAdmin {
		g := map[string]bool{}
		for _, p := range s.st.permissions {
			if p.Action == "read" {
				g[p.ID] = true
			}
		}
		s.st.grants[a.ID] = g
	}
	return a
}

func (s *Server) handleSetupMFA(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	a, ok := s.caller(r)
	if !ok {
		notFound(w, "User")
		return
	}
	if a.MFAEnabled {
		httpx.WriteError(w, http.StatusBadRequest, "MFA is already enabled")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Atelier",
		AccountName: a.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	codes, err := cryptox.BackupCodes(backupCodeCount)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	a.pendingMFA = key.Secret()
	a.pendingCodes = a.pendingCodes[:0]
	for _, c := range codes {
		a.pendingCodes = append(a.pendingCodes, cryptox.Fingerprint(c))
	}

	httpx.WriteData(w, http.StatusOK, shopsdk.MFASetup{
		Secret:      key.Secret(),
		QRCode:      key.URL(),
		BackupCodes: codes,
	})
}

func (s *Server) handleEnableMFA(w http.ResponseWriter, r *http.Request) {
	var req tokenBody
	if !decode(w, r, &req) {
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	a, ok := s.caller(r)
	if !ok {
		notFound(w, "User")
		return
	}
	if a.MFAEnabled {
		httpx.WriteError(w, http.StatusBadRequest, "MFA is already enabled")
		return
	}
	if a.pendingMFA == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Run MFA setup first")
		return
	}
	if !totp.Validate(strings.TrimSpace(req.Token), a.pendingMFA) {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid MFA code")
		return
	}

	a.mfaSecret, a.pendingMFA = a.pendingMFA, ""
	a.backupCodes = make(map[string]bool, len(a.pendingCodes))
	for _, fp := range a.pendingCodes {
		a.backupCodes[fp] = false
	}
	a.pendingCodes = nil
	a.MFAEnabled = true
	a.UpdatedAt = s.now()
	s.event(r, a.ID, "mfa_enabled", shopsdk.RiskLow, "Two-factor authentication enabled")
	writeMessage(w, http.StatusOK, "MFA enabled")
}

func (s *Server) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	var req shopsdk.DisableMFARequest
	if !decode(w, r, &req) {
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	a, ok := s.caller(r)
	if !ok {
		notFound(w, "User")
		return
	}
	if !a.MFAEnabled {
		httpx.WriteError(w, http.StatusBadRequest, "MFA is not enabled")
		return
	}
	// Credential failures are 400, not 401: the token itself is fine.
	if cryptox.VerifyPassword(req.Password, a.passwordHash) != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid password")
		return
	}
	if !totp.Validate(req.Code, a.mfaSecret) {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid MFA code")
		return
	}

	a.MFAEnabled = false
	a.mfaSecret = ""
	a.backupCodes = nil
	a.UpdatedAt = s.now()
	s.event(r, a.ID, "mfa_disabled", shopsdk.RiskMedium, "Two-factor authentication disabled")
	writeMessage(w, http.StatusOK, "MFA disabled")
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	current, _ := s.currentSession(r)
	userID := httpx.UserID(r.Context())
	var out []shopsdk.AuthSession
	for _, se := range s.st.sessions.rows {
		if se.userID != userID {
			continue
		}
		out = append(out, shopsdk.AuthSession{
			ID:           se.id,
			IPAddress:    se.ip,
			UserAgent:    se.userAgent,
			Current:      current != nil && current.id == se.id,
			CreatedAt:    se.createdAt,
			LastActiveAt: se.lastActive,
		})
	}
	slices.SortFunc(out, func(a, b shopsdk.AuthSession) int { return b.LastActiveAt.Compare(a.LastActiveAt) })
	if out == nil {
		out = []shopsdk.AuthSession{}
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	se, ok := s.st.sessions.get(id)
	if !ok || se.userID != httpx.UserID(r.Context()) {
		notFound(w, "Session")
		return
	}
	s.st.sessions.remove(id)
	s.event(r, se.userID, "session_revoked", shopsdk.RiskLow, "Session revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	keep := ""
	if se, ok := s.currentSession(r); ok {
		keep = se.id
	}
	userID := httpx.UserID(r.Context())
	n := s.st.dropSessions(userID, keep)
	s.event(r, userID, "sessions_revoked", shopsdk.RiskMedium, "Other sessions revoked")
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Message: "Other sessions revoked",
		Data:    map[string]int{"revoked": n},
	})
}
