// Package roster owns the list of tracked students.
package roster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"rollcall/internal/events"
	"rollcall/internal/metrics"
	"rollcall/internal/persist"
	"rollcall/internal/store"
)

var (
	ErrInvalidStudent  = errors.New("name and roll are required")
	ErrStudentNotFound = errors.New("student not found")
)

// Student is one roster entry. ID never changes after creation.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Roll string `json:"roll"`
}

// Cascader drops every reference to a removed student. The entries in with
// must be written in the same atomic batch as the cascade itself.
type Cascader interface {
	CascadeDelete(ctx context.Context, studentID string, with ...store.Entry) error
}

// Store is the single writer of the roster. Every mutation persists the
// whole list before it becomes visible.
type Store struct {
	kv      store.KV
	cascade Cascader
	bus     events.Bus
	newID   func() string

	loadFailed bool

	mu       sync.Mutex
	students []Student
}

// Open loads the roster from kv. cascade and bus may be nil.
func Open(ctx context.Context, kv store.KV, cascade Cascader, bus events.Bus) *Store {
	students, ok := persist.Load(ctx, kv, persist.KeyStudents, []Student{})
	if students == nil {
		students = []Student{}
	}
	return &Store{
		kv:         kv,
		cascade:    cascade,
		bus:        bus,
		newID:      uuid.NewString,
		loadFailed: !ok,
		students:   students,
	}
}

// LoadFailed reports whether Open fell back to an empty roster because the
// stored one could not be read.
func (s *Store) LoadFailed() bool { return s.loadFailed }

// Add appends a new student with a fresh id.
func (s *Store) Add(ctx context.Context, name, roll string) (Student, error) {
	name, roll, err := clean(name, roll)
	if err != nil {
		return Student{}, err
	}

	s.mu.Lock()
	st := Student{ID: s.uniqueID(), Name: name, Roll: roll}
	next := append(slices.Clone(s.students), st)
	err = s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return Student{}, err
	}

	metrics.Mutations.WithLabelValues("roster", "add").Inc()
	events.Emit(ctx, s.bus, events.StudentAdded, st)
	return st, nil
}

// Update replaces name and roll of an existing student, keeping its id and
// position.
func (s *Store) Update(ctx context.Context, id, name, roll string) (Student, error) {
	name, roll, err := clean(name, roll)
	if err != nil {
		return Student{}, err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Student{}, ErrStudentNotFound
	}
	next := slices.Clone(s.students)
	next[i].Name, next[i].Roll = name, roll
	st := next[i]
	err = s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return Student{}, err
	}

	metrics.Mutations.WithLabelValues("roster", "update").Inc()
	events.Emit(ctx, s.bus, events.StudentUpdated, st)
	return st, nil
}

// Remove deletes the student and cascades into attendance. The roster write
// and the cascade land in one batch. Removing an unknown id is not an error;
// the cascade still runs so stray attendance entries are cleaned up.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	next := s.students
	if i >= 0 {
		next = slices.Delete(slices.Clone(s.students), i, i+1)
	}

	var err error
	switch {
	case s.cascade != nil:
		var entry store.Entry
		if entry, err = persist.Entry(persist.KeyStudents, next); err == nil {
			err = s.cascade.CascadeDelete(ctx, id, entry)
		}
		if err != nil {
			metrics.PersistErrors.WithLabelValues("roster").Inc()
			err = fmt.Errorf("remove student %s: %w", id, err)
		}
	case i >= 0:
		err = s.commit(ctx, next)
	}
	if err == nil {
		s.students = next
	}
	s.mu.Unlock()
	if err != nil || i < 0 {
		return err
	}

	metrics.Mutations.WithLabelValues("roster", "remove").Inc()
	events.Emit(ctx, s.bus, events.StudentRemoved, map[string]string{"id": id})
	return nil
}

// Get returns the student with the given id.
func (s *Store) Get(id string) (Student, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.students[i], true
	}
	return Student{}, false
}

// WithStudent runs fn while the roster is locked and the student with id is
// known to exist, so no Remove can interleave. fn must not call back into
// the roster. It returns ErrStudentNotFound without calling fn for an
// unknown id.
func (s *Store) WithStudent(id string, fn func(Student) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrStudentNotFound
	}
	return fn(s.students[i])
}

// Len returns the number of students.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.students)
}

// All returns the students in creation order, as persisted.
func (s *Store) All() []Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.students)
}

// List returns the students in display order: by name, then by roll with
// digit runs compared as numbers. Exact ties keep creation order.
func (s *Store) List() []Student {
	out := s.All()
	Sort(out)
	return out
}

// Sort orders students in place the way List does.
func Sort(students []Student) {
	names := collate.New(language.Und)
	rolls := collate.New(language.Und, collate.Numeric)
	slices.SortStableFunc(students, func(a, b Student) int {
		if c := names.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return rolls.CompareString(a.Roll, b.Roll)
	})
}

// commit persists next and makes it current. Caller holds s.mu.
func (s *Store) commit(ctx context.Context, next []Student) error {
	entry, err := persist.Entry(persist.KeyStudents, next)
	if err == nil {
		err = s.kv.Write(ctx, entry)
	}
	if err != nil {
		metrics.PersistErrors.WithLabelValues("roster").Inc()
		return fmt.Errorf("persist students: %w", err)
	}
	s.students = next
	return nil
}

// uniqueID draws ids until one is unused. Caller holds s.mu.
func (s *Store) uniqueID() string {
	id := s.newID()
	for s.indexOf(id) >= 0 {
		id = s.newID()
	}
	return id
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.students, func(st Student) bool { return st.ID == id })
}

func clean(name, roll string) (string, string, error) {
	name, roll = strings.TrimSpace(name), strings.TrimSpace(roll)
	if name == "" || roll == "" {
		return "", "", ErrInvalidStudent
	}
	return name, roll, nil
}
