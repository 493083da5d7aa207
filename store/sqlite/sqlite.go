/*
Package sqlite provides the SQLite-backed implementation of mess.TxStore.

PURPOSE:
  Implements persistence for students, ledgers, and bookings. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  students: One row per ledger owner; the four token columns ARE the
            ledger, each guarded by a CHECK (count >= 0).
  bookings: Immutable reservation records with per-slot booked and
            verified flags.

CRITICAL INDEX:
  idx_bookings_student_date enforces one booking per (student, date).
  This is the backstop for racing duplicate reservations: even if two
  requests pass the existence pre-check, the second insert is rejected
  by the storage layer.

ATOMIC UPDATES:
  - DebitLedger decrements all requested slots in one UPDATE guarded by
    per-slot token checks; either every slot decrements or none do.
  - SetVerified is a single conditional UPDATE (booked AND NOT verified),
    so concurrent verifications cannot double-apply.
  - ResetLedger is one unconditional UPDATE per student; SQLite's write
    serialization orders it against in-flight debits.

WAL MODE:
  The database is opened with WAL so readers don't block and a single
  writer at a time proceeds with better crash recovery.

SEE ALSO:
  - mess/store.go:        Interface definitions and atomicity contract
  - mess/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/mess-engine/mess"
)

const dayFormat = "2006-01-02"

// Store implements mess.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time, and every pooled connection to
	// ":memory:" would otherwise open its own empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Students (ledger owners); the token columns are the ledger
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		roll_no TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		mess_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		tokens_breakfast INTEGER NOT NULL DEFAULT 15 CHECK (tokens_breakfast >= 0),
		tokens_lunch     INTEGER NOT NULL DEFAULT 15 CHECK (tokens_lunch >= 0),
		tokens_snacks    INTEGER NOT NULL DEFAULT 15 CHECK (tokens_snacks >= 0),
		tokens_dinner    INTEGER NOT NULL DEFAULT 15 CHECK (tokens_dinner >= 0),
		created_at TEXT NOT NULL
	);

	-- Bookings (immutable; only the verified flags are ever updated)
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		date TEXT NOT NULL,
		booked_breakfast INTEGER NOT NULL DEFAULT 0,
		booked_lunch     INTEGER NOT NULL DEFAULT 0,
		booked_snacks    INTEGER NOT NULL DEFAULT 0,
		booked_dinner    INTEGER NOT NULL DEFAULT 0,
		verified_breakfast INTEGER NOT NULL DEFAULT 0,
		verified_lunch     INTEGER NOT NULL DEFAULT 0,
		verified_snacks    INTEGER NOT NULL DEFAULT 0,
		verified_dinner    INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one booking per (student, date)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_student_date
		ON bookings(student_id, date);

	-- For the admin meal list (hot path)
	CREATE INDEX IF NOT EXISTS idx_bookings_date
		ON bookings(date);

	-- For booking history
	CREATE INDEX IF NOT EXISTS idx_bookings_student
		ON bookings(student_id, date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COLUMN MAPPING - Closed slot enumeration to column names
// =============================================================================

// Slot values come from the closed mess.MealSlot enumeration, never from
// raw request input, so interpolating these names into SQL is safe.

func tokenColumn(slot mess.MealSlot) string {
	return "tokens_" + string(slot)
}

func bookedColumn(slot mess.MealSlot) string {
	return "booked_" + string(slot)
}

func verifiedColumn(slot mess.MealSlot) string {
	return "verified_" + string(slot)
}

// =============================================================================
// STUDENT STORE
// =============================================================================

// SaveStudent inserts a student row.
func (s *Store) SaveStudent(ctx context.Context, st mess.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStudent(ctx, s.db, st)
}

func saveStudent(ctx context.Context, db dbtx, st mess.Student) error {
	query := `
		INSERT INTO students
		(id, roll_no, name, mess_name, role,
		 tokens_breakfast, tokens_lunch, tokens_snacks, tokens_dinner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		st.ID, st.RollNo, st.Name, st.MessName, string(st.Role),
		st.Ledger.Breakfast, st.Ledger.Lunch, st.Ledger.Snacks, st.Ledger.Dinner,
		st.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return mapSQLError(err)
	}
	return nil
}

// GetStudent returns a student by ID.
func (s *Store) GetStudent(ctx context.Context, id string) (*mess.Student, error) {
	return getStudent(ctx, s.db, id)
}

func getStudent(ctx context.Context, db dbtx, id string) (*mess.Student, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, roll_no, name, mess_name, role,
		       tokens_breakfast, tokens_lunch, tokens_snacks, tokens_dinner, created_at
		FROM students WHERE id = ?
	`, id)

	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, mess.ErrStudentNotFound
	}
	if err != nil {
		return nil, mapSQLError(err)
	}
	return st, nil
}

// ListStudents returns all students ordered by roll number.
func (s *Store) ListStudents(ctx context.Context) ([]mess.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, roll_no, name, mess_name, role,
		       tokens_breakfast, tokens_lunch, tokens_snacks, tokens_dinner, created_at
		FROM students ORDER BY roll_no ASC
	`)
	if err != nil {
		return nil, mapSQLError(err)
	}
	defer rows.Close()

	var students []mess.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *st)
	}
	return students, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*mess.Student, error) {
	var st mess.Student
	var role, createdAt string

	err := row.Scan(
		&st.ID, &st.RollNo, &st.Name, &st.MessName, &role,
		&st.Ledger.Breakfast, &st.Ledger.Lunch, &st.Ledger.Snacks, &st.Ledger.Dinner,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	st.Role = mess.Role(role)
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &st, nil
}

// =============================================================================
// LEDGER MUTATIONS
// =============================================================================

// DebitLedger removes one token from every requested slot in a single
// guarded UPDATE. All-or-nothing: a zero balance in any requested slot
// fails the whole debit with the complete list of short slots.
func (s *Store) DebitLedger(ctx context.Context, studentID string, requested mess.SlotSet) (mess.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return debitLedger(ctx, s.db, studentID, requested)
}

func debitLedger(ctx context.Context, db dbtx, studentID string, requested mess.SlotSet) (mess.Ledger, error) {
	st, err := getStudent(ctx, db, studentID)
	if err != nil {
		return mess.Ledger{}, err
	}

	if short := st.Ledger.Short(requested); len(short) > 0 {
		return mess.Ledger{}, &mess.InsufficientTokensError{StudentID: studentID, Slots: short}
	}

	var sets, guards []string
	for _, slot := range mess.AllSlots() {
		if !requested.Has(slot) {
			continue
		}
		col := tokenColumn(slot)
		sets = append(sets, col+" = "+col+" - 1")
		guards = append(guards, col+" >= 1")
	}

	query := "UPDATE students SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND " + strings.Join(guards, " AND ")

	res, err := db.ExecContext(ctx, query, studentID)
	if err != nil {
		return mess.Ledger{}, mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mess.Ledger{}, err
	}
	if n == 0 {
		// Balance moved between the read and the guarded write.
		return mess.Ledger{}, mess.ErrConflict
	}

	return st.Ledger.Debit(requested), nil
}

// ResetLedger sets one student's ledger to the allotment, unconditionally.
func (s *Store) ResetLedger(ctx context.Context, studentID string, allotment mess.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resetLedger(ctx, s.db, studentID, allotment)
}

func resetLedger(ctx context.Context, db dbtx, studentID string, allotment mess.Ledger) error {
	res, err := db.ExecContext(ctx, `
		UPDATE students
		SET tokens_breakfast = ?, tokens_lunch = ?, tokens_snacks = ?, tokens_dinner = ?
		WHERE id = ?
	`, allotment.Breakfast, allotment.Lunch, allotment.Snacks, allotment.Dinner, studentID)
	if err != nil {
		return mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mess.ErrStudentNotFound
	}
	return nil
}

// =============================================================================
// BOOKING STORE
// =============================================================================

// InsertBooking persists a new booking. The unique (student, date) index
// rejects racing duplicates.
func (s *Store) InsertBooking(ctx context.Context, b mess.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBooking(ctx, s.db, b)
}

func insertBooking(ctx context.Context, db dbtx, b mess.Booking) error {
	query := `
		INSERT INTO bookings
		(id, student_id, date,
		 booked_breakfast, booked_lunch, booked_snacks, booked_dinner,
		 verified_breakfast, verified_lunch, verified_snacks, verified_dinner,
		 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		b.ID, b.StudentID, b.Date.Format(dayFormat),
		b.Booked.Breakfast, b.Booked.Lunch, b.Booked.Snacks, b.Booked.Dinner,
		b.Verified.Breakfast, b.Verified.Lunch, b.Verified.Snacks, b.Verified.Dinner,
		b.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return mapSQLError(err)
	}
	return nil
}

// GetBooking returns a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id string) (*mess.Booking, error) {
	return getBooking(ctx, s.db, id)
}

func getBooking(ctx context.Context, db dbtx, id string) (*mess.Booking, error) {
	row := db.QueryRowContext(ctx, selectBooking+" WHERE id = ?", id)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, mess.ErrBookingNotFound
	}
	if err != nil {
		return nil, mapSQLError(err)
	}
	return b, nil
}

// FindBooking returns the booking for (student, date), or nil if none.
func (s *Store) FindBooking(ctx context.Context, studentID string, date time.Time) (*mess.Booking, error) {
	return findBooking(ctx, s.db, studentID, date)
}

func findBooking(ctx context.Context, db dbtx, studentID string, date time.Time) (*mess.Booking, error) {
	row := db.QueryRowContext(ctx,
		selectBooking+" WHERE student_id = ? AND date = ?",
		studentID, date.Format(dayFormat),
	)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapSQLError(err)
	}
	return b, nil
}

const selectBooking = `
	SELECT id, student_id, date,
	       booked_breakfast, booked_lunch, booked_snacks, booked_dinner,
	       verified_breakfast, verified_lunch, verified_snacks, verified_dinner,
	       created_at
	FROM bookings
`

func scanBooking(row rowScanner) (*mess.Booking, error) {
	var b mess.Booking
	var date, createdAt string

	err := row.Scan(
		&b.ID, &b.StudentID, &date,
		&b.Booked.Breakfast, &b.Booked.Lunch, &b.Booked.Snacks, &b.Booked.Dinner,
		&b.Verified.Breakfast, &b.Verified.Lunch, &b.Verified.Snacks, &b.Verified.Dinner,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	b.Date, _ = time.Parse(dayFormat, date)
	b.Date = b.Date.UTC()
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

// =============================================================================
// VERIFICATION
// =============================================================================

// SetVerified flips verified[slot] with a single conditional update: the
// write succeeds only when the slot is booked and not yet verified, so two
// concurrent verifications cannot both apply. Zero rows affected is
// diagnosed into NotFound / NotBooked / AlreadyVerified.
func (s *Store) SetVerified(ctx context.Context, bookingID string, slot mess.MealSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setVerified(ctx, s.db, bookingID, slot)
}

func setVerified(ctx context.Context, db dbtx, bookingID string, slot mess.MealSlot) error {
	booked := bookedColumn(slot)
	verified := verifiedColumn(slot)

	query := "UPDATE bookings SET " + verified + " = 1" +
		" WHERE id = ? AND " + booked + " = 1 AND " + verified + " = 0"

	res, err := db.ExecContext(ctx, query, bookingID)
	if err != nil {
		return mapSQLError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	b, err := getBooking(ctx, db, bookingID)
	if err != nil {
		return err
	}
	if !b.Booked.Has(slot) {
		return mess.ErrNotBooked
	}
	return mess.ErrAlreadyVerified
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// Unverified returns booked-but-unverified entries for (date, slot),
// ordered by roll number ascending.
func (s *Store) Unverified(ctx context.Context, date time.Time, slot mess.MealSlot) ([]mess.UnverifiedEntry, error) {
	query := `
		SELECT b.id, s.id, s.roll_no, s.name, s.mess_name
		FROM bookings b
		JOIN students s ON s.id = b.student_id
		WHERE b.date = ? AND b.` + bookedColumn(slot) + ` = 1 AND b.` + verifiedColumn(slot) + ` = 0
		ORDER BY s.roll_no ASC
	`

	rows, err := s.db.QueryContext(ctx, query, date.Format(dayFormat))
	if err != nil {
		return nil, mapSQLError(err)
	}
	defer rows.Close()

	var entries []mess.UnverifiedEntry
	for rows.Next() {
		var e mess.UnverifiedEntry
		if err := rows.Scan(&e.BookingID, &e.StudentID, &e.RollNo, &e.Name, &e.MessName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// History returns a student's bookings, most recent date first.
func (s *Store) History(ctx context.Context, studentID string, limit int) ([]mess.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		selectBooking+" WHERE student_id = ? ORDER BY date DESC LIMIT ?",
		studentID, limit,
	)
	if err != nil {
		return nil, mapSQLError(err)
	}
	defer rows.Close()

	var bookings []mess.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (mess.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration, so the transaction also serializes against every
// standalone write on this connection.
func (s *Store) WithTx(ctx context.Context, fn func(mess.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the view of the store inside WithTx. The parent holds the
// mutex, so these methods must not lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveStudent(ctx context.Context, st mess.Student) error {
	return saveStudent(ctx, ts.tx, st)
}

func (ts *txStore) GetStudent(ctx context.Context, id string) (*mess.Student, error) {
	return getStudent(ctx, ts.tx, id)
}

func (ts *txStore) ListStudents(ctx context.Context) ([]mess.Student, error) {
	return nil, fmt.Errorf("ListStudents not supported inside a transaction")
}

func (ts *txStore) GetBooking(ctx context.Context, id string) (*mess.Booking, error) {
	return getBooking(ctx, ts.tx, id)
}

func (ts *txStore) FindBooking(ctx context.Context, studentID string, date time.Time) (*mess.Booking, error) {
	return findBooking(ctx, ts.tx, studentID, date)
}

func (ts *txStore) InsertBooking(ctx context.Context, b mess.Booking) error {
	return insertBooking(ctx, ts.tx, b)
}

func (ts *txStore) DebitLedger(ctx context.Context, studentID string, requested mess.SlotSet) (mess.Ledger, error) {
	return debitLedger(ctx, ts.tx, studentID, requested)
}

func (ts *txStore) SetVerified(ctx context.Context, bookingID string, slot mess.MealSlot) error {
	return setVerified(ctx, ts.tx, bookingID, slot)
}

func (ts *txStore) ResetLedger(ctx context.Context, studentID string, allotment mess.Ledger) error {
	return resetLedger(ctx, ts.tx, studentID, allotment)
}

func (ts *txStore) Unverified(ctx context.Context, date time.Time, slot mess.MealSlot) ([]mess.UnverifiedEntry, error) {
	return nil, fmt.Errorf("Unverified not supported inside a transaction")
}

func (ts *txStore) History(ctx context.Context, studentID string, limit int) ([]mess.Booking, error) {
	return nil, fmt.Errorf("History not supported inside a transaction")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: bookings.student_id"):
		return mess.ErrDuplicateBooking
	case strings.Contains(msg, "UNIQUE constraint failed: students.roll_no"):
		return mess.ErrDuplicateRollNo
	case strings.Contains(msg, "CHECK constraint failed"):
		// A debit slipped past its guard; treat as a concurrent conflict.
		return mess.ErrConflict
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"):
		return mess.ErrConflict
	}
	return fmt.Errorf("%w: %v", mess.ErrStoreUnavailable, err)
}
