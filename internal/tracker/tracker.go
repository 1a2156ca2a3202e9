// Package tracker wires the roster and attendance stores over one backend.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"rollcall/internal/attendance"
	"rollcall/internal/events"
	"rollcall/internal/logger"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

// Tracker holds the two stores. Build it once at startup and hand it to
// whatever renders the data.
type Tracker struct {
	Roster     *roster.Store
	Attendance *attendance.Store
	KV         store.KV
	Bus        events.Bus
}

// Open loads both stores from kv. With prune set, attendance entries left
// behind by students missing from the roster are cascaded away, unless the
// roster itself could not be loaded.
func Open(ctx context.Context, kv store.KV, bus events.Bus, prune bool) *Tracker {
	att := attendance.Open(ctx, kv, bus)
	t := &Tracker{
		Roster:     roster.Open(ctx, kv, att, bus),
		Attendance: att,
		KV:         kv,
		Bus:        bus,
	}
	switch {
	case !prune:
	case t.Roster.LoadFailed():
		logger.Logger.Warn().Msg("roster could not be loaded, skipping orphaned attendance prune")
	default:
		if n, err := t.Prune(ctx); err != nil {
			logger.Logger.Warn().Err(err).Msg("prune orphaned attendance failed")
		} else if n > 0 {
			logger.Logger.Info().Int("students", n).Msg("pruned orphaned attendance")
		}
	}
	return t
}

// ErrRosterNotLoaded is returned by Prune when the roster fell back to empty
// on load; every attendance id would look orphaned.
var ErrRosterNotLoaded = errors.New("roster was not loaded from storage")

// Prune cascades every student id that appears in attendance but not in the
// roster, and returns how many were removed.
func (t *Tracker) Prune(ctx context.Context) (int, error) {
	if t.Roster.LoadFailed() {
		return 0, ErrRosterNotLoaded
	}
	n := 0
	for _, id := range t.Attendance.StudentIDs() {
		if _, ok := t.Roster.Get(id); ok {
			continue
		}
		if err := t.Attendance.CascadeDelete(ctx, id); err != nil {
			return n, fmt.Errorf("prune %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// Mark records status for a student that is on the roster. The roster stays
// locked until the mark is stored, so a concurrent Remove either lands first
// (and Mark reports roster.ErrStudentNotFound) or cascades the new mark away.
func (t *Tracker) Mark(ctx context.Context, date, studentID string, status attendance.Status) error {
	return t.Roster.WithStudent(studentID, func(roster.Student) error {
		return t.Attendance.Mark(ctx, date, studentID, status)
	})
}

// Row is one student with their status on a given date.
type Row struct {
	Student roster.Student    `json:"student"`
	Status  attendance.Status `json:"status"`
}

// Sheet returns every student in display order with their status on date.
func (t *Tracker) Sheet(date string) []Row {
	students := t.Roster.List()
	day := t.Attendance.Day(date)
	rows := make([]Row, 0, len(students))
	for _, st := range students {
		status, ok := day[st.ID]
		if !ok {
			status = attendance.NotMarked
		}
		rows = append(rows, Row{Student: st, Status: status})
	}
	return rows
}
