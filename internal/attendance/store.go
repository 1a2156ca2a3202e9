// Package attendance keeps the per-date status of every student.
package attendance

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"rollcall/internal/events"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/persist"
	"rollcall/internal/store"
)

// Records maps date to student id to status. A missing student id means
// not marked.
type Records map[string]map[string]Status

// Mark is the body of an attendance.marked event.
type Mark struct {
	Date      string `json:"date"`
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
}

// Cascade is the body of an attendance.cascaded event.
type Cascade struct {
	StudentID string `json:"student_id"`
	Dates     int    `json:"dates"`
}

// Store is the single writer of the attendance records. It refers to
// students by id only and is told about removals through CascadeDelete.
type Store struct {
	kv  store.KV
	bus events.Bus

	loadFailed bool

	mu      sync.Mutex
	records Records
}

// Open loads the records from kv. bus may be nil.
func Open(ctx context.Context, kv store.KV, bus events.Bus) *Store {
	records, ok := persist.Load(ctx, kv, persist.KeyAttendance, Records{})
	return &Store{kv: kv, bus: bus, records: sanitize(records), loadFailed: !ok}
}

// LoadFailed reports whether Open fell back to empty records because the
// stored ones could not be read.
func (s *Store) LoadFailed() bool { return s.loadFailed }

// Mark sets the status of studentID on date, replacing any earlier mark.
func (s *Store) Mark(ctx context.Context, date, studentID string, status Status) error {
	switch {
	case !status.Markable():
		return ErrInvalidStatus
	case !ValidDate(date):
		return ErrInvalidDate
	case studentID == "":
		return ErrMissingStudent
	}

	s.mu.Lock()
	next := maps.Clone(s.records)
	day := maps.Clone(next[date])
	if day == nil {
		day = make(map[string]Status)
	}
	day[studentID] = status
	next[date] = day
	err := s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.Mutations.WithLabelValues("attendance", "mark").Inc()
	events.Emit(ctx, s.bus, events.AttendanceMarked, Mark{Date: date, StudentID: studentID, Status: status})
	return nil
}

// StatusOf returns the stored status, or NotMarked.
func (s *Store) StatusOf(date, studentID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.records[date][studentID]; ok {
		return st
	}
	return NotMarked
}

// CascadeDelete removes studentID from every date. Dates left empty stay in
// place. Entries passed in with are written in the same batch, which lets
// the roster commit its removal atomically with the cascade.
func (s *Store) CascadeDelete(ctx context.Context, studentID string, with ...store.Entry) error {
	s.mu.Lock()
	next := s.records
	touched := 0
	for date, day := range s.records {
		if _, ok := day[studentID]; !ok {
			continue
		}
		if touched == 0 {
			next = maps.Clone(s.records)
		}
		day = maps.Clone(day)
		delete(day, studentID)
		next[date] = day
		touched++
	}

	entries := with
	if touched > 0 {
		entry, err := persist.Entry(persist.KeyAttendance, next)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		entries = append(slices.Clone(with), entry)
	}

	var err error
	if len(entries) > 0 {
		if err = s.kv.Write(ctx, entries...); err != nil {
			metrics.PersistErrors.WithLabelValues("attendance").Inc()
			err = fmt.Errorf("persist attendance: %w", err)
		}
	}
	if err == nil {
		s.records = next
	}
	s.mu.Unlock()
	if err != nil || touched == 0 {
		return err
	}

	metrics.Mutations.WithLabelValues("attendance", "cascade").Inc()
	events.Emit(ctx, s.bus, events.AttendanceCascaded, Cascade{StudentID: studentID, Dates: touched})
	return nil
}

// Day returns a copy of the marks recorded on date.
func (s *Store) Day(date string) map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := maps.Clone(s.records[date])
	if day == nil {
		day = make(map[string]Status)
	}
	return day
}

// Dates returns every date that has an entry, oldest first.
func (s *Store) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.records))
}

// StudentIDs returns every student id referenced on any date, sorted.
func (s *Store) StudentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, day := range s.records {
		for id := range day {
			seen[id] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Snapshot returns a deep copy of all records.
func (s *Store) Snapshot() Records {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Records, len(s.records))
	for date, day := range s.records {
		out[date] = maps.Clone(day)
	}
	return out
}

// commit persists next and makes it current. Caller holds s.mu.
func (s *Store) commit(ctx context.Context, next Records) error {
	entry, err := persist.Entry(persist.KeyAttendance, next)
	if err == nil {
		err = s.kv.Write(ctx, entry)
	}
	if err != nil {
		metrics.PersistErrors.WithLabelValues("attendance").Inc()
		return fmt.Errorf("persist attendance: %w", err)
	}
	s.records = next
	return nil
}

// sanitize drops stored statuses that could not have been marked.
func sanitize(records Records) Records {
	if records == nil {
		return Records{}
	}
	dropped := 0
	for date, day := range records {
		if day == nil {
			records[date] = make(map[string]Status)
			continue
		}
		for id, st := range day {
			if !st.Markable() {
				delete(day, id)
				dropped++
			}
		}
	}
	if dropped > 0 {
		logger.Logger.Warn().Int("dropped", dropped).Msg("ignored stored attendance entries with unknown status")
	}
	return records
}
