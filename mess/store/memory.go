// Package store provides an in-memory mess.TxStore for testing and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/mess-engine/mess"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements mess.TxStore with maps. Individual operations are
// atomic under mu; WithTx serializes whole units under txMu and rolls a
// failed unit back by restoring a pre-unit snapshot.
type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	students map[string]mess.Student
	bookings map[string]mess.Booking
	byDay    map[dayKey]string // (student, date) -> booking ID
}

type dayKey struct {
	StudentID string
	Day       string // 2006-01-02
}

func NewMemory() *Memory {
	return &Memory{
		students: make(map[string]mess.Student),
		bookings: make(map[string]mess.Booking),
		byDay:    make(map[dayKey]string),
	}
}

func key(studentID string, date time.Time) dayKey {
	return dayKey{StudentID: studentID, Day: date.Format("2006-01-02")}
}

// WithTx serializes the unit against all other units. fn receives the
// store itself; the inner operations take their own locks. A transaction
// is simulated with a snapshot taken before fn and restored if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(mess.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	students map[string]mess.Student
	bookings map[string]mess.Booking
	byDay    map[dayKey]string
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		students: make(map[string]mess.Student, len(m.students)),
		bookings: make(map[string]mess.Booking, len(m.bookings)),
		byDay:    make(map[dayKey]string, len(m.byDay)),
	}
	for k, v := range m.students {
		snap.students[k] = v
	}
	for k, v := range m.bookings {
		snap.bookings[k] = v
	}
	for k, v := range m.byDay {
		snap.byDay[k] = v
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.students = snap.students
	m.bookings = snap.bookings
	m.byDay = snap.byDay
}

// =============================================================================
// STUDENTS
// =============================================================================

func (m *Memory) SaveStudent(_ context.Context, s mess.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.students {
		if existing.RollNo == s.RollNo {
			return mess.ErrDuplicateRollNo
		}
	}
	m.students[s.ID] = s
	return nil
}

func (m *Memory) GetStudent(_ context.Context, id string) (*mess.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, mess.ErrStudentNotFound
	}
	return &s, nil
}

func (m *Memory) ListStudents(_ context.Context) ([]mess.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	students := make([]mess.Student, 0, len(m.students))
	for _, s := range m.students {
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].RollNo < students[j].RollNo })
	return students, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) DebitLedger(_ context.Context, studentID string, requested mess.SlotSet) (mess.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[studentID]
	if !ok {
		return mess.Ledger{}, mess.ErrStudentNotFound
	}

	if short := s.Ledger.Short(requested); len(short) > 0 {
		return mess.Ledger{}, &mess.InsufficientTokensError{StudentID: studentID, Slots: short}
	}

	s.Ledger = s.Ledger.Debit(requested)
	m.students[studentID] = s
	return s.Ledger, nil
}

func (m *Memory) ResetLedger(_ context.Context, studentID string, allotment mess.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[studentID]
	if !ok {
		return mess.ErrStudentNotFound
	}
	s.Ledger = allotment
	m.students[studentID] = s
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (m *Memory) InsertBooking(_ context.Context, b mess.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(b.StudentID, b.Date)
	if _, exists := m.byDay[k]; exists {
		return mess.ErrDuplicateBooking
	}
	m.bookings[b.ID] = b
	m.byDay[k] = b.ID
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id string) (*mess.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, mess.ErrBookingNotFound
	}
	return &b, nil
}

func (m *Memory) FindBooking(_ context.Context, studentID string, date time.Time) (*mess.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byDay[key(studentID, date)]
	if !ok {
		return nil, nil
	}
	b := m.bookings[id]
	return &b, nil
}

func (m *Memory) SetVerified(_ context.Context, bookingID string, slot mess.MealSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return mess.ErrBookingNotFound
	}
	if !b.Booked.Has(slot) {
		return mess.ErrNotBooked
	}
	if b.Verified.Has(slot) {
		return mess.ErrAlreadyVerified
	}
	b.Verified.Set(slot, true)
	m.bookings[bookingID] = b
	return nil
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func (m *Memory) Unverified(_ context.Context, date time.Time, slot mess.MealSlot) ([]mess.UnverifiedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := date.Format("2006-01-02")
	var entries []mess.UnverifiedEntry
	for _, b := range m.bookings {
		if b.Date.Format("2006-01-02") != day || !b.Booked.Has(slot) || b.Verified.Has(slot) {
			continue
		}
		s := m.students[b.StudentID]
		entries = append(entries, mess.UnverifiedEntry{
			BookingID: b.ID,
			StudentID: s.ID,
			RollNo:    s.RollNo,
			Name:      s.Name,
			MessName:  s.MessName,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RollNo < entries[j].RollNo })
	return entries, nil
}

func (m *Memory) History(_ context.Context, studentID string, limit int) ([]mess.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var bookings []mess.Booking
	for _, b := range m.bookings {
		if b.StudentID == studentID {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].Date.After(bookings[j].Date) })
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}
