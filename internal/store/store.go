// Package store persists the application's records as plain JSON documents
// under a data directory, one file per collection. Writes are atomic
// (temp file + rename) and files are created 0600; the rest of the system
// neither knows nor cares that the medium is the filesystem.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindme/internal/model"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

const (
	lecturesFile      = "lectures.json"
	examsFile         = "exams.json"
	assignmentsFile   = "assignments.json"
	settingsFile      = "settings.json"
	subscriptionsFile = "subscriptions.json"
)

// Store is a document store rooted at a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New ensures the data directory exists and returns a store over it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: data directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// load reads a JSON document into v. A missing file leaves v untouched.
func (s *Store) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// save writes v as indented JSON, atomically via temp file + rename.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".remindme-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}

// Lectures returns all stored lectures.
func (s *Store) Lectures() ([]model.Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Lecture{}
	err := s.load(lecturesFile, &out)
	return out, err
}

// GetLecture returns one lecture by id.
func (s *Store) GetLecture(id string) (model.Lecture, error) {
	lectures, err := s.Lectures()
	if err != nil {
		return model.Lecture{}, err
	}
	for _, l := range lectures {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Lecture{}, ErrNotFound
}

// PutLecture inserts or replaces a lecture, assigning an id when missing.
func (s *Store) PutLecture(lec *model.Lecture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lec.ID == "" {
		lec.ID = uuid.NewString()
	}
	lectures := []model.Lecture{}
	if err := s.load(lecturesFile, &lectures); err != nil {
		return err
	}
	replaced := false
	for i := range lectures {
		if lectures[i].ID == lec.ID {
			lectures[i] = *lec
			replaced = true
			break
		}
	}
	if !replaced {
		lectures = append(lectures, *lec)
	}
	return s.save(lecturesFile, lectures)
}

// DeleteLecture removes a lecture; ErrNotFound when the id is unknown.
func (s *Store) DeleteLecture(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lectures := []model.Lecture{}
	if err := s.load(lecturesFile, &lectures); err != nil {
		return err
	}
	kept := lectures[:0]
	for _, l := range lectures {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lectures) {
		return ErrNotFound
	}
	return s.save(lecturesFile, kept)
}

// Exams returns all stored exams.
func (s *Store) Exams() ([]model.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Exam{}
	err := s.load(examsFile, &out)
	return out, err
}

// PutExam inserts or replaces an exam, assigning an id when missing.
func (s *Store) PutExam(exam *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	exams := []model.Exam{}
	if err := s.load(examsFile, &exams); err != nil {
		return err
	}
	replaced := false
	for i := range exams {
		if exams[i].ID == exam.ID {
			exams[i] = *exam
			replaced = true
			break
		}
	}
	if !replaced {
		exams = append(exams, *exam)
	}
	return s.save(examsFile, exams)
}

// GetExam returns one exam by id.
func (s *Store) GetExam(id string) (model.Exam, error) {
	exams, err := s.Exams()
	if err != nil {
		return model.Exam{}, err
	}
	for _, e := range exams {
		if e.ID == id {
			return e, nil
		}
	}
	return model.Exam{}, ErrNotFound
}

// DeleteExam removes an exam; ErrNotFound when the id is unknown.
func (s *Store) DeleteExam(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exams := []model.Exam{}
	if err := s.load(examsFile, &exams); err != nil {
		return err
	}
	kept := exams[:0]
	for _, e := range exams {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(exams) {
		return ErrNotFound
	}
	return s.save(examsFile, kept)
}

// Assignments returns all stored assignments.
func (s *Store) Assignments() ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Assignment{}
	err := s.load(assignmentsFile, &out)
	return out, err
}

// PutAssignment inserts or replaces an assignment, assigning an id when
// missing.
func (s *Store) PutAssignment(a *model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	assignments := []model.Assignment{}
	if err := s.load(assignmentsFile, &assignments); err != nil {
		return err
	}
	replaced := false
	for i := range assignments {
		if assignments[i].ID == a.ID {
			assignments[i] = *a
			replaced = true
			break
		}
	}
	if !replaced {
		assignments = append(assignments, *a)
	}
	return s.save(assignmentsFile, assignments)
}

// GetAssignment returns one assignment by id.
func (s *Store) GetAssignment(id string) (model.Assignment, error) {
	assignments, err := s.Assignments()
	if err != nil {
		return model.Assignment{}, err
	}
	for _, a := range assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Assignment{}, ErrNotFound
}

// DeleteAssignment removes an assignment; ErrNotFound when the id is unknown.
func (s *Store) DeleteAssignment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments := []model.Assignment{}
	if err := s.load(assignmentsFile, &assignments); err != nil {
		return err
	}
	kept := assignments[:0]
	for _, a := range assignments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(assignments) {
		return ErrNotFound
	}
	return s.save(assignmentsFile, kept)
}

// Settings returns the stored settings, falling back to defaults.
func (s *Store) Settings() (model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := model.DefaultSettings()
	if err := s.load(settingsFile, &out); err != nil {
		return model.DefaultSettings(), err
	}
	if out.NotificationOffsetMinutes < 0 {
		out.NotificationOffsetMinutes = model.DefaultSettings().NotificationOffsetMinutes
	}
	return out, nil
}

// SaveSettings persists the settings.
func (s *Store) SaveSettings(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settingsFile, settings)
}

// Subscriptions returns all stored push subscriptions.
func (s *Store) Subscriptions() ([]model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Subscription{}
	err := s.load(subscriptionsFile, &out)
	return out, err
}

// AddSubscription registers a push endpoint, replacing any existing record
// with the same endpoint.
func (s *Store) AddSubscription(endpoint string, keys map[string]string) (model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := []model.Subscription{}
	if err := s.load(subscriptionsFile, &subs); err != nil {
		return model.Subscription{}, err
	}
	sub := model.Subscription{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		Keys:      keys,
		CreatedAt: time.Now(),
		Active:    true,
	}
	kept := subs[:0]
	for _, existing := range subs {
		if existing.Endpoint != endpoint {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, sub)
	return sub, s.save(subscriptionsFile, kept)
}

// DeleteSubscription removes a push endpoint. Unknown endpoints are ignored.
func (s *Store) DeleteSubscription(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := []model.Subscription{}
	if err := s.load(subscriptionsFile, &subs); err != nil {
		return err
	}
	kept := subs[:0]
	for _, existing := range subs {
		if existing.Endpoint != endpoint {
			kept = append(kept, existing)
		}
	}
	return s.save(subscriptionsFile, kept)
}
