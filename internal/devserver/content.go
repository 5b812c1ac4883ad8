package devserver

import (
	"cmp"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

// partners

var partnerOrder = bySortOrder(
	func(p shopsdk.Partner) int { return p.SortOrder },
	func(p shopsdk.Partner) string { return p.Name },
)

func (s *Server) handleListPartners(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.st.partners.snapshot(nil, partnerOrder))
}

func (s *Server) handleActivePartners(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.st.partners.snapshot(func(p *shopsdk.Partner) bool { return p.IsActive }, partnerOrder))
}

func (s *Server) handleGetPartner(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	p, ok := s.st.partners.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Partner")
		return
	}
	httpx.WriteData(w, http.StatusOK, *p)
}

func applyPartner(p *shopsdk.Partner, in shopsdk.PartnerInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Logo = in.Logo
	p.Website = in.Website
	p.ContactEmail = in.ContactEmail
	p.ContactPhone = in.ContactPhone
	p.PartnershipType = in.PartnershipType
	p.PartnershipStartDate = in.PartnershipStartDate
	p.IsActive = deref(in.IsActive, p.IsActive)
	p.IsFeatured = deref(in.IsFeatured, p.IsFeatured)
	p.SortOrder = deref(in.SortOrder, p.SortOrder)
}

func (s *Server) handleCreatePartner(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.PartnerInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p := &shopsdk.Partner{ID: newID(), IsActive: true, SortOrder: len(s.st.partners.rows) + 1}
	applyPartner(p, in)
	s.st.partners.put(p.ID, p)
	httpx.WriteData(w, http.StatusCreated, *p)
}

func (s *Server) handleUpdatePartner(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.PartnerInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.partners.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Partner")
		return
	}
	applyPartner(p, in)
	httpx.WriteData(w, http.StatusOK, *p)
}

func (s *Server) handleDeletePartner(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if !s.st.partners.remove(r.PathValue("id")) {
		notFound(w, "Partner")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) togglePartner(w http.ResponseWriter, r *http.Request, flip func(*shopsdk.Partner)) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.partners.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Partner")
		return
	}
	flip(p)
	httpx.WriteData(w, http.StatusOK, *p)
}

func (s *Server) handleTogglePartner(w http.ResponseWriter, r *http.Request) {
	s.togglePartner(w, r, func(p *shopsdk.Partner) { p.IsActive = !p.IsActive })
}

func (s *Server) handleTogglePartnerFeatured(w http.ResponseWriter, r *http.Request) {
	s.togglePartner(w, r, func(p *shopsdk.Partner) { p.IsFeatured = !p.IsFeatured })
}

// testimonials

var testimonialOrder = bySortOrder(
	func(t shopsdk.Testimonial) int { return t.SortOrder },
	func(t shopsdk.Testimonial) string { return t.Name },
)

func (s *Server) handleListTestimonials(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.st.testimonials.snapshot(nil, testimonialOrder))
}

func (s *Server) handleActiveTestimonials(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.st.testimonials.snapshot(func(t *shopsdk.Testimonial) bool { return t.IsActive }, testimonialOrder))
}

func (s *Server) handleGetTestimonial(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	t, ok := s.st.testimonials.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Testimonial")
		return
	}
	httpx.WriteData(w, http.StatusOK, *t)
}

func applyTestimonial(t *shopsdk.Testimonial, in shopsdk.TestimonialInput) {
	t.Name = strings.TrimSpace(in.Name)
	t.Title = in.Title
	t.Quote = strings.TrimSpace(in.Quote)
	t.Image = in.Image
	t.IsActive = deref(in.IsActive, t.IsActive)
	t.SortOrder = deref(in.SortOrder, t.SortOrder)
}

func (s *Server) handleCreateTestimonial(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.TestimonialInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t := &shopsdk.Testimonial{ID: newID(), IsActive: true, SortOrder: len(s.st.testimonials.rows) + 1}
	applyTestimonial(t, in)
	s.st.testimonials.put(t.ID, t)
	httpx.WriteData(w, http.StatusCreated, *t)
}

func (s *Server) handleUpdateTestimonial(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.TestimonialInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t, ok := s.st.testimonials.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Testimonial")
		return
	}
	applyTestimonial(t, in)
	httpx.WriteData(w, http.StatusOK, *t)
}

func (s *Server) handleDeleteTestimonial(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if !s.st.testimonials.remove(r.PathValue("id")) {
		notFound(w, "Testimonial")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleTestimonial(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t, ok := s.st.testimonials.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Testimonial")
		return
	}
	t.IsActive = !t.IsActive
	httpx.WriteData(w, http.StatusOK, *t)
}

// contact messages

const defaultMessageSource = "contact_form"

func (s *Server) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.ContactRequest
	if !decode(w, r, &in) {
		return
	}
	m := &shopsdk.ContactMessage{
		ID:        newID(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     in.Phone,
		Company:   in.Company,
		Subject:   strings.TrimSpace(in.Subject),
		Message:   in.Message,
		Status:    shopsdk.MessageUnread,
		Priority:  shopsdk.PriorityMedium,
		Source:    cmp.Or(in.Source, defaultMessageSource),
		CreatedAt: s.now(),
	}

	s.st.mu.Lock()
	s.st.messages.put(m.ID, m)
	s.st.mu.Unlock()

	slogx.FromContext(r.Context()).Info("contact message received", "id", m.ID, "source", m.Source)
	httpx.WriteJSON(w, http.StatusCreated, httpx.Envelope{
		Success: true,
		Message: "Thank you, we will be in touch soon",
		Data:    *m,
	})
}

func messageLess(sortBy, order string) func(a, b shopsdk.ContactMessage) int {
	desc := !strings.EqualFold(order, "asc")
	return func(a, b shopsdk.ContactMessage) int {
		var c int
		switch sortBy {
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "subject":
			c = strings.Compare(a.Subject, b.Subject)
		case "priority":
			c = cmp.Compare(priorityRank(a.Priority), priorityRank(b.Priority))
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		c = cmp.Or(c, strings.Compare(a.ID, b.ID))
		if desc {
			return -c
		}
		return c
	}
}

func priorityRank(p shopsdk.Priority) int {
	switch p {
	case shopsdk.PriorityLow:
		return 0
	case shopsdk.PriorityMedium:
		return 1
	case shopsdk.PriorityHigh:
		return 2
	default:
		return 3
	}
}

// filterMessages applies the inbox query. Callers hold a lock.
func (s *Server) filterMessages(r *http.Request) []shopsdk.ContactMessage {
	q := r.URL.Query()
	status := shopsdk.MessageStatus(q.Get("status"))
	priority := shopsdk.Priority(q.Get("priority"))
	search := q.Get("search")

	return s.st.messages.snapshot(func(m *shopsdk.ContactMessage) bool {
		switch {
		case status != "" && m.Status != status:
			return false
		case priority != "" && m.Priority != priority:
			return false
		case search != "" && !contains(m.Name, search) && !contains(m.Email, search) &&
			!contains(m.Subject, search) && !contains(m.Message, search):
			return false
		}
		return true
	}, messageLess(q.Get("sortBy"), q.Get("sortOrder")))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	items := s.filterMessages(r)
	s.st.mu.RUnlock()

	page, p := paginate(items, readPage(r))
	writePage(w, page, p)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.messages.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Message")
		return
	}
	if m.Status == shopsdk.MessageUnread {
		now := s.now()
		m.Status = shopsdk.MessageRead
		m.ReadAt = &now
	}
	httpx.WriteData(w, http.StatusOK, *m)
}

// setMessageStatus moves m to status, stamping the read and reply times.
func setMessageStatus(m *shopsdk.ContactMessage, status shopsdk.MessageStatus, now time.Time) {
	m.Status = status
	switch status {
	case shopsdk.MessageRead:
		if m.ReadAt == nil {
			m.ReadAt = &now
		}
	case shopsdk.MessageReplied:
		if m.ReadAt == nil {
			m.ReadAt = &now
		}
		m.RepliedAt = &now
	}
}

func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody[shopsdk.MessageStatus]
	if !decode(w, r, &body) {
		return
	}
	if !body.Status.IsValid() {
		httpx.WriteValidation(w, map[string]string{"status": "unknown status"})
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.messages.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Message")
		return
	}
	setMessageStatus(m, body.Status, s.now())
	httpx.WriteData(w, http.StatusOK, *m)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.MessageUpdate
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.messages.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Message")
		return
	}
	m.Priority = cmp.Or(in.Priority, m.Priority)
	m.AdminNotes = deref(in.AdminNotes, m.AdminNotes)
	httpx.WriteData(w, http.StatusOK, *m)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if !s.st.messages.remove(r.PathValue("id")) {
		notFound(w, "Message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkMessageStatus(w http.ResponseWriter, r *http.Request) {
	var body bulkBody
	if !decode(w, r, &body) {
		return
	}
	status := shopsdk.MessageStatus(body.Status)
	if !status.IsValid() {
		httpx.WriteValidation(w, map[string]string{"status": "unknown status"})
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	now := s.now()
	for _, id := range body.IDs {
		if m, ok := s.st.messages.get(id); ok {
			setMessageStatus(m, status, now)
		}
	}
	writeMessage(w, http.StatusOK, "Messages updated")
}

func (s *Server) handleBulkDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var body bulkBody
	if !decode(w, r, &body) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	n := 0
	for _, id := range body.IDs {
		if s.st.messages.remove(id) {
			n++
		}
	}
	writeMessage(w, http.StatusOK, strconv.Itoa(n)+" messages deleted")
}

func (s *Server) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	st := shopsdk.MessageStats{ByPriority: map[shopsdk.Priority]int{}}
	for _, m := range s.st.messages.rows {
		st.Total++
		st.ByPriority[m.Priority]++
		switch m.Status {
		case shopsdk.MessageUnread:
			st.Unread++
		case shopsdk.MessageRead:
			st.Read++
		case shopsdk.MessageReplied:
			st.Replied++
		}
	}
	httpx.WriteData(w, http.StatusOK, st)
}

func (s *Server) handleExportMessages(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	items := s.filterMessages(r)
	s.st.mu.RUnlock()

	rows := make([][]string, 0, len(items))
	for _, m := range items {
		rows = append(rows, []string{
			m.ID, m.CreatedAt.UTC().Format(time.RFC3339), m.Name, m.Email, m.Phone, m.Company,
			m.Subject, m.Message, string(m.Status), string(m.Priority), m.Source,
		})
	}
	writeCSV(w, r, "messages.csv",
		[]string{"id", "created_at", "name", "email", "phone", "company", "subject", "message", "status", "priority", "source"},
		rows)
}

// writeCSV sends rows as an attachment named filename.
func writeCSV(w http.ResponseWriter, r *http.Request, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	err := cw.Write(header)
	if err == nil {
		err = cw.WriteAll(rows)
	}
	if err != nil {
		slogx.FromContext(r.Context()).Warn("csv export interrupted", "file", filename, "err", err)
	}
}
