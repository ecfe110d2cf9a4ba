// Package web exposes the HTTP API: record CRUD wired to the scheduling
// coordinator, today/week views, the settings endpoint, push subscription
// registration and the exported calendar feed.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"remindme/internal/clock"
	"remindme/internal/config"
	"remindme/internal/ics"
	appLog "remindme/internal/log"
	"remindme/internal/model"
	"remindme/internal/notify"
	"remindme/internal/schedule"
	"remindme/internal/store"
)

// Server provides the HTTP API over the store and coordinator.
type Server struct {
	cfg   *config.Config
	store *store.Store
	coord *notify.Coordinator
	loc   *time.Location
	mux   *http.ServeMux

	nowFn func() time.Time
}

// NewServer constructs a new Server. loc is the canonical scheduling
// timezone (nil means time.Local).
func NewServer(cfg *config.Config, st *store.Store, coord *notify.Coordinator, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:   cfg,
		store: st,
		coord: coord,
		loc:   loc,
		mux:   http.NewServeMux(),
		nowFn: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="RemindMe", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/lectures", s.handleListLectures)
	s.mux.HandleFunc("POST /api/lectures", s.handleCreateLecture)
	s.mux.HandleFunc("GET /api/lectures/{id}", s.handleGetLecture)
	s.mux.HandleFunc("PUT /api/lectures/{id}", s.handleUpdateLecture)
	s.mux.HandleFunc("DELETE /api/lectures/{id}", s.handleDeleteLecture)

	s.mux.HandleFunc("GET /api/exams", s.handleListExams)
	s.mux.HandleFunc("POST /api/exams", s.handleCreateExam)
	s.mux.HandleFunc("PUT /api/exams/{id}", s.handleUpdateExam)
	s.mux.HandleFunc("DELETE /api/exams/{id}", s.handleDeleteExam)

	s.mux.HandleFunc("GET /api/assignments", s.handleListAssignments)
	s.mux.HandleFunc("POST /api/assignments", s.handleCreateAssignment)
	s.mux.HandleFunc("PUT /api/assignments/{id}", s.handleUpdateAssignment)
	s.mux.HandleFunc("DELETE /api/assignments/{id}", s.handleDeleteAssignment)

	s.mux.HandleFunc("GET /api/today", s.handleToday)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	s.mux.HandleFunc("POST /api/subscriptions", s.handleSubscribe)
	s.mux.HandleFunc("DELETE /api/subscriptions", s.handleUnsubscribe)

	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarFeed)
}

func (s *Server) now() time.Time {
	return s.nowFn().In(s.loc)
}

// offsetMinutes resolves the effective reminder lead time from the stored
// settings, falling back to the config default.
func (s *Server) offsetMinutes() int {
	settings, err := s.store.Settings()
	if err != nil {
		appLog.Warn("settings load failed, using config default", "err", err)
		return s.cfg.OffsetMinutes
	}
	return settings.NotificationOffsetMinutes
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListLectures(w http.ResponseWriter, _ *http.Request) {
	lectures, err := s.store.Lectures()
	if err != nil {
		appLog.Error("listing lectures failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load lectures")
		return
	}
	writeJSON(w, http.StatusOK, lectures)
}

func (s *Server) handleGetLecture(w http.ResponseWriter, r *http.Request) {
	lec, err := s.store.GetLecture(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lec)
}

func (s *Server) handleCreateLecture(w http.ResponseWriter, r *http.Request) {
	var lec model.Lecture
	if err := json.NewDecoder(r.Body).Decode(&lec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Assign the id up front so the scheduled payloads reference it.
	lec.ID = uuid.NewString()
	lec.ClearHandles()
	if err := lec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Scheduling failures degrade to absent handles; the record still saves.
	if err := s.coord.ScheduleLecture(r.Context(), &lec, s.offsetMinutes()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.PutLecture(&lec); err != nil {
		appLog.Error("saving lecture failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save lecture")
		return
	}
	writeJSON(w, http.StatusCreated, lec)
}

func (s *Server) handleUpdateLecture(w http.ResponseWriter, r *http.Request) {
	old, err := s.store.GetLecture(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var updated model.Lecture
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ID = old.ID
	// Carry the live handles so the reschedule can cancel them first.
	updated.NotificationHandle = old.NotificationHandle
	updated.SecondaryHandle = old.SecondaryHandle
	updated.AlarmHandles = old.AlarmHandles
	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.coord.RescheduleLecture(r.Context(), &updated, s.offsetMinutes()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.PutLecture(&updated); err != nil {
		appLog.Error("saving lecture failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save lecture")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteLecture(w http.ResponseWriter, r *http.Request) {
	lec, err := s.store.GetLecture(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.coord.UnscheduleLecture(r.Context(), &lec)
	if err := s.store.DeleteLecture(lec.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExams(w http.ResponseWriter, _ *http.Request) {
	exams, err := s.store.Exams()
	if err != nil {
		appLog.Error("listing exams failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load exams")
		return
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].Date.Before(exams[j].Date) })
	writeJSON(w, http.StatusOK, exams)
}

func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var exam model.Exam
	if err := json.NewDecoder(r.Body).Decode(&exam); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	exam.ID = uuid.NewString()
	exam.ReminderHandle = ""
	if err := exam.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.coord.ScheduleExam(r.Context(), &exam, s.offsetMinutes())
	if err := s.store.PutExam(&exam); err != nil {
		appLog.Error("saving exam failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save exam")
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (s *Server) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	old, err := s.store.GetExam(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var updated model.Exam
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ID = old.ID
	updated.ReminderHandle = old.ReminderHandle
	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.coord.RescheduleExam(r.Context(), &updated, s.offsetMinutes())
	if err := s.store.PutExam(&updated); err != nil {
		appLog.Error("saving exam failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save exam")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	exam, err := s.store.GetExam(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.coord.UnscheduleExam(r.Context(), &exam)
	if err := s.store.DeleteExam(exam.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.store.Assignments()
	if err != nil {
		appLog.Error("listing assignments failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load assignments")
		return
	}
	if v := r.URL.Query().Get("upcoming"); v != "" {
		limit := parseIntDefault(v, 3)
		writeJSON(w, http.StatusOK, model.UpcomingAssignments(assignments, limit, s.now()))
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var a model.Assignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a.ID = uuid.NewString()
	a.ReminderHandle = ""
	if err := a.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.coord.ScheduleAssignment(r.Context(), &a, s.offsetMinutes())
	if err := s.store.PutAssignment(&a); err != nil {
		appLog.Error("saving assignment failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save assignment")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	old, err := s.store.GetAssignment(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var updated model.Assignment
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ID = old.ID
	updated.ReminderHandle = old.ReminderHandle
	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.coord.UnscheduleAssignment(r.Context(), &updated)
	s.coord.ScheduleAssignment(r.Context(), &updated, s.offsetMinutes())
	if err := s.store.PutAssignment(&updated); err != nil {
		appLog.Error("saving assignment failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save assignment")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAssignment(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.coord.UnscheduleAssignment(r.Context(), &a)
	if err := s.store.DeleteAssignment(a.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lectureView decorates a lecture for the today/week views.
type lectureView struct {
	model.Lecture
	IsNow     bool   `json:"is_now"`
	Countdown string `json:"countdown,omitempty"`
	NextStart string `json:"next_start"`
}

func (s *Server) lectureViews(lectures []model.Lecture, now time.Time) []lectureView {
	offset := s.offsetMinutes()
	views := make([]lectureView, 0, len(lectures))
	for _, lec := range lectures {
		start, err := clock.ParseTime(lec.StartTime)
		if err != nil {
			continue
		}
		end, err := clock.ParseTime(lec.EndTime)
		if err != nil {
			continue
		}
		view := lectureView{Lecture: lec}
		if lec.DayOfWeek == clock.CurrentDay(now) {
			view.IsNow = clock.IsNow(start, end, now)
			view.Countdown = clock.Countdown(start, now)
		}
		view.NextStart = schedule.NextOccurrence(lec.DayOfWeek, start, offset, now).Format(time.RFC3339)
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, _ := clock.ParseTime(views[i].StartTime)
		b, _ := clock.ParseTime(views[j].StartTime)
		return a.MinutesOfDay() < b.MinutesOfDay()
	})
	return views
}

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request) {
	lectures, err := s.store.Lectures()
	if err != nil {
		appLog.Error("listing lectures failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load lectures")
		return
	}
	now := s.now()
	day := clock.CurrentDay(now)
	todays := lectures[:0]
	for _, lec := range lectures {
		if lec.DayOfWeek == day {
			todays = append(todays, lec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":      day.String(),
		"date":     now.Format("2006-01-02"),
		"lectures": s.lectureViews(todays, now),
	})
}

func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	lectures, err := s.store.Lectures()
	if err != nil {
		appLog.Error("listing lectures failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load lectures")
		return
	}
	now := s.now()

	type dayView struct {
		Day      string        `json:"day"`
		Lectures []lectureView `json:"lectures"`
	}
	days := make([]dayView, 7)
	for d := clock.Monday; d <= clock.Sunday; d++ {
		var of []model.Lecture
		for _, lec := range lectures {
			if lec.DayOfWeek == d {
				of = append(of, lec)
			}
		}
		days[d] = dayView{Day: d.String(), Lectures: s.lectureViews(of, now)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.store.Settings()
	if err != nil {
		appLog.Error("settings load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings stores the new settings and resyncs every reminder so
// the changed lead time takes effect immediately.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if settings.NotificationOffsetMinutes < 0 {
		writeError(w, http.StatusBadRequest, "notification offset must not be negative")
		return
	}
	if err := s.store.SaveSettings(settings); err != nil {
		appLog.Error("settings save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	if err := s.ResyncAll(r.Context()); err != nil {
		appLog.Error("resync after settings change failed", err)
	}
	writeJSON(w, http.StatusOK, settings)
}

type subscribeRequest struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}
	sub, err := s.store.AddSubscription(req.Endpoint, req.Keys)
	if err != nil {
		appLog.Error("subscription save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := s.store.DeleteSubscription(req.Endpoint); err != nil {
		appLog.Error("subscription delete failed", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendarFeed(w http.ResponseWriter, _ *http.Request) {
	lectures, err := s.store.Lectures()
	if err != nil {
		appLog.Error("listing lectures failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load lectures")
		return
	}
	exams, err := s.store.Exams()
	if err != nil {
		appLog.Error("listing exams failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load exams")
		return
	}
	feed, err := ics.Feed(lectures, exams, s.offsetMinutes(), s.now())
	if err != nil {
		appLog.Error("calendar feed build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// ResyncAll cancels and re-derives every record's reminders, then persists
// the refreshed handles. Used after settings changes and by the periodic
// sweep in cmd/remindme.
func (s *Server) ResyncAll(ctx context.Context) error {
	lectures, err := s.store.Lectures()
	if err != nil {
		return err
	}
	exams, err := s.store.Exams()
	if err != nil {
		return err
	}
	assignments, err := s.store.Assignments()
	if err != nil {
		return err
	}

	lecPtrs := make([]*model.Lecture, len(lectures))
	for i := range lectures {
		lecPtrs[i] = &lectures[i]
	}
	examPtrs := make([]*model.Exam, len(exams))
	for i := range exams {
		examPtrs[i] = &exams[i]
	}
	assignPtrs := make([]*model.Assignment, len(assignments))
	for i := range assignments {
		assignPtrs[i] = &assignments[i]
	}

	s.coord.Resync(ctx, lecPtrs, examPtrs, assignPtrs, s.offsetMinutes())

	var errs []error
	for i := range lectures {
		if err := s.store.PutLecture(&lectures[i]); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range exams {
		if err := s.store.PutExam(&exams[i]); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range assignments {
		if err := s.store.PutAssignment(&assignments[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	appLog.Error("store access failed", err)
	writeError(w, http.StatusInternalServerError, "storage error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
