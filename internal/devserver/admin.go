package devserver

import (
	"cmp"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const recentMessages = 5

// users

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")
	role := shopsdk.Role(q.Get("role"))
	active := q.Get("isActive")

	s.st.mu.RLock()
	items := s.st.accounts.snapshot(func(a *account) bool {
		switch {
		case search != "" && !contains(a.Name, search) && !contains(a.Email, search):
			return false
		case role != "" && a.Role != role:
			return false
		case active != "" && (active == "true") != a.IsActive:
			return false
		}
		return true
	}, func(a, b account) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.Email, b.Email))
	})
	s.st.mu.RUnlock()

	users := make([]shopsdk.User, len(items))
	for i, a := range items {
		users[i] = a.User
	}
	page, p := paginate(users, readPage(r))
	writePage(w, page, p)
}

// target loads the account named by the path and refuses to let a plain
// admin touch a super admin. Callers hold the write lock.
func (s *Server) target(w http.ResponseWriter, r *http.Request) (*account, bool) {
	a, ok := s.st.accounts.get(r.PathValue("id"))
	if !ok {
		notFound(w, "User")
		return nil, false
	}
	if a.Role == shopsdk.RoleSuperAdmin && httpx.Role(r.Context()) != string(shopsdk.RoleSuperAdmin) {
		httpx.WriteError(w, http.StatusForbidden, "Only a super admin can manage a super admin")
		return nil, false
	}
	return a, true
}

func (s *Server) notSelf(w http.ResponseWriter, r *http.Request, a *account, what string) bool {
	if a.ID == httpx.UserID(r.Context()) {
		httpx.WriteError(w, http.StatusBadRequest, "You cannot "+what+" your own account")
		return false
	}
	return true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.st.accounts.get(r.PathValue("id"))
	if !ok {
		notFound(w, "User")
		return
	}
	httpx.WriteData(w, http.StatusOK, a.User)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.CreateUserRequest
	if !decode(w, r, &in) {
		return
	}
	if in.Role == shopsdk.RoleSuperAdmin && httpx.Role(r.Context()) != string(shopsdk.RoleSuperAdmin) {
		httpx.WriteError(w, http.StatusForbidden, "Only a super admin can create a super admin")
		return
	}
	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, exists := s.st.accountByEmail(in.Email); exists {
		httpx.WriteError(w, http.StatusConflict, "Email already registered")
		return
	}
	a := s.newAccount(in.Name, in.Email, in.Role, hash)
	s.event(r, a.ID, "user_created", shopsdk.RiskLow, "Account created by "+httpx.UserID(r.Context()))
	httpx.WriteData(w, http.StatusCreated, a.User)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.UpdateUserRequest
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.target(w, r)
	if !ok {
		return
	}
	if in.Email != "" {
		if other, exists := s.st.accountByEmail(in.Email); exists && other.ID != a.ID {
			httpx.WriteError(w, http.StatusConflict, "Email already registered")
			return
		}
		a.Email = strings.ToLower(strings.TrimSpace(in.Email))
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		a.Name = name
	}
	a.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusOK, a.User)
}

type roleBody struct {
	Role shopsdk.Role `json:"role"`
}

// handleUserRole changes a role and ends the user's sessions, so the next
// token they obtain carries the new role.
func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	var body roleBody
	if !decode(w, r, &body) {
		return
	}
	if !body.Role.IsValid() {
		httpx.WriteValidation(w, map[string]string{"role": "unknown role"})
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.target(w, r)
	if !ok || !s.notSelf(w, r, a, "change the role of") {
		return
	}
	if a.Role != body.Role {
		a.Role = body.Role
		a.UpdatedAt = s.now()
		switch a.Role {
		case shopsdk.RoleAdmin:
			if s.st.grants[a.ID] == nil {
				s.st.grants[a.ID] = map[string]bool{}
			}
		default:
			delete(s.st.grants, a.ID)
		}
		n := s.st.dropSessions(a.ID, "")
		s.event(r, a.ID, "role_changed", shopsdk.RiskHigh, "Role changed to "+string(a.Role))
		slogx.FromContext(r.Context()).Info("role changed", "user_id", a.ID, "role", a.Role, "sessions_ended", n)
	}
	httpx.WriteData(w, http.StatusOK, a.User)
}

func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.target(w, r)
	if !ok || !s.notSelf(w, r, a, "deactivate") {
		return
	}
	a.IsActive = !a.IsActive
	a.UpdatedAt = s.now()
	if !a.IsActive {
		s.st.dropSessions(a.ID, "")
		s.event(r, a.ID, "user_deactivated", shopsdk.RiskMedium, "Account deactivated")
	}
	httpx.WriteData(w, http.StatusOK, a.User)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.target(w, r)
	if !ok || !s.notSelf(w, r, a, "delete") {
		return
	}
	s.st.dropSessions(a.ID, "")
	delete(s.st.grants, a.ID)
	s.st.accounts.remove(a.ID)
	s.event(r, "", "user_deleted", shopsdk.RiskHigh, "Account "+a.Email+" deleted")
	w.WriteHeader(http.StatusNoContent)
}

// changePasswordBody is the wire form of shopsdk.ChangePasswordRequest; the
// confirmation never leaves the client.
type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (b changePasswordBody) Validate() shopsdk.ValidationErrors {
	errs := shopsdk.ValidationErrors{}
	if b.CurrentPassword == "" {
		errs["currentPassword"] = "current password is required"
	}
	if len(b.NewPassword) < 8 {
		errs["newPassword"] = "password must be at least 8 characters"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordBody
	if !decode(w, r, &body) {
		return
	}

	s.st.mu.RLock()
	a, ok := s.caller(r)
	var hash string
	if ok {
		hash = a.passwordHash
	}
	s.st.mu.RUnlock()
	if !ok {
		notFound(w, "User")
		return
	}
	if cryptox.VerifyPassword(body.CurrentPassword, hash) != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	next, err := cryptox.HashPassword(body.NewPassword)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	keep := ""
	if se, ok := s.currentSession(r); ok {
		keep = se.id
	}
	a.passwordHash = next
	a.UpdatedAt = s.now()
	s.st.dropSessions(a.ID, keep)
	s.event(r, a.ID, "password_changed", shopsdk.RiskMedium, "Password changed")
	writeMessage(w, http.StatusOK, "Password changed")
}

// permissions

func (s *Server) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, append([]shopsdk.Permission(nil), s.st.permissions...))
}

func (s *Server) writeUserPermissions(w http.ResponseWriter, a *account) {
	out := s.st.userPermissions(a)
	if out == nil {
		out = []shopsdk.UserPermission{}
	}
	httpx.WriteData(w, http.StatusOK, out)
}

func (s *Server) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.caller(r)
	if !ok {
		notFound(w, "User")
		return
	}
	s.writeUserPermissions(w, a)
}

func (s *Server) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	a, ok := s.st.accounts.get(r.PathValue("id"))
	if !ok {
		notFound(w, "User")
		return
	}
	s.writeUserPermissions(w, a)
}

type grantsBody struct {
	Permissions []shopsdk.PermissionGrant `json:"permissions"`
}

func (s *Server) handleUpdateUserPermissions(w http.ResponseWriter, r *http.Request) {
	var body grantsBody
	if !decode(w, r, &body) {
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.st.accounts.get(r.PathValue("id"))
	if !ok {
		notFound(w, "User")
		return
	}
	if a.Role != shopsdk.RoleAdmin {
		httpx.WriteError(w, http.StatusBadRequest, "Permissions apply to admin accounts only")
		return
	}
	for _, g := range body.Permissions {
		if _, known := s.st.permission(g.PermissionID); !known {
			httpx.WriteValidation(w, map[string]string{"permissions": "unknown permission " + g.PermissionID})
			return
		}
	}

	grants := s.st.grants[a.ID]
	if grants == nil {
		grants = map[string]bool{}
		s.st.grants[a.ID] = grants
	}
	for _, g := range body.Permissions {
		grants[g.PermissionID] = g.IsGranted
	}
	s.event(r, a.ID, "permissions_changed", shopsdk.RiskHigh, "Permissions updated")
	s.writeUserPermissions(w, a)
}

// dashboard

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	st := shopsdk.DashboardStats{
		Products:     len(s.st.products.rows),
		Categories:   len(s.st.categories.rows),
		Partners:     len(s.st.partners.rows),
		Testimonials: len(s.st.testimonials.rows),
		Users:        len(s.st.accounts.rows),
	}
	for _, p := range s.st.products.rows {
		if p.IsLowStock() {
			st.LowStock++
		}
	}
	msgs := s.st.messages.snapshot(nil, messageLess("", "desc"))
	for _, m := range msgs {
		if m.Status == shopsdk.MessageUnread {
			st.UnreadMessages++
		}
	}
	st.RecentMessages = msgs[:min(len(msgs), recentMessages)]
	httpx.WriteData(w, http.StatusOK, st)
}

// security

func (s *Server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	now := s.now()
	st := shopsdk.SecurityStats{
		TotalEvents:    len(s.st.events),
		ActiveSessions: len(s.st.sessions.rows),
		ByRiskLevel:    map[shopsdk.RiskLevel]int{},
	}
	for _, ev := range s.st.events {
		st.ByRiskLevel[ev.RiskLevel]++
		if ev.EventType == "login_failed" && now.Sub(ev.CreatedAt) <= 24*time.Hour {
			st.FailedLogins24h++
		}
	}
	for _, a := range s.st.accounts.rows {
		if a.locked(now) {
			st.LockedAccounts++
		}
		if a.MFAEnabled {
			st.MFAEnabledUsers++
		}
	}
	httpx.WriteData(w, http.StatusOK, st)
}

// filterEvents applies the audit log query, newest first. Callers hold a
// lock.
func (s *Server) filterEvents(r *http.Request) ([]shopsdk.SecurityEvent, bool) {
	q := r.URL.Query()
	kind := q.Get("eventType")
	risk := shopsdk.RiskLevel(q.Get("riskLevel"))
	userID := q.Get("userId")

	var from, to time.Time
	for key, dst := range map[string]*time.Time{"startDate": &from, "endDate": &to} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, false
			}
			*dst = t
		}
	}

	out := make([]shopsdk.SecurityEvent, 0, len(s.st.events))
	for i := len(s.st.events) - 1; i >= 0; i-- {
		ev := s.st.events[i]
		switch {
		case kind != "" && ev.EventType != kind:
			continue
		case risk != "" && ev.RiskLevel != risk:
			continue
		case userID != "" && (ev.UserID == nil || *ev.UserID != userID):
			continue
		case !from.IsZero() && ev.CreatedAt.Before(from):
			continue
		case !to.IsZero() && ev.CreatedAt.After(to):
			continue
		}
		out = append(out, ev)
	}
	return out, true
}

func (s *Server) handleSecurityLogs(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	items, ok := s.filterEvents(r)
	s.st.mu.RUnlock()
	if !ok {
		httpx.WriteValidation(w, map[string]string{"startDate": "dates must be RFC 3339"})
		return
	}
	page, p := paginate(items, readPage(r))
	writePage(w, page, p)
}

func (s *Server) handleExportSecurityLogs(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	items, ok := s.filterEvents(r)
	s.st.mu.RUnlock()
	if !ok {
		httpx.WriteValidation(w, map[string]string{"startDate": "dates must be RFC 3339"})
		return
	}

	rows := make([][]string, 0, len(items))
	for _, ev := range items {
		user := ""
		if ev.User != nil {
			user = ev.User.Email
		}
		rows = append(rows, []string{
			ev.ID, ev.CreatedAt.UTC().Format(time.RFC3339), ev.EventType, string(ev.RiskLevel),
			user, ev.IPAddress, ev.UserAgent, ev.Description,
		})
	}
	writeCSV(w, r, "security-logs.csv",
		[]string{"id", "created_at", "eventType", "riskLevel", "user", "ip_address", "user_agent", "description"},
		rows)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	a, ok := s.st.accounts.get(r.PathValue("id"))
	if !ok {
		notFound(w, "User")
		return
	}
	a.lockedUntil = time.Time{}
	a.failed = 0
	s.event(r, a.ID, "account_unlocked", shopsdk.RiskMedium, "Account unlocked by "+httpx.UserID(r.Context()))
	writeMessage(w, http.StatusOK, "Account unlocked")
}
