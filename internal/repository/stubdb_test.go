package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubDB models the slice of the schema the transaction helpers touch:
// timeslot capacity, active bookings, the payments unique transaction id and
// the package_usage ledger. FOR UPDATE becomes a per-timeslot mutex held
// until the transaction resolves, and writes stay staged until commit, so
// the locked check-and-insert sequence runs under the same visibility rules
// it has in Postgres.
type stubDB struct {
	mu            sync.Mutex
	capacity      map[int64]int
	slotLocks     map[int64]*sync.Mutex
	bookings      map[bookingPair]bool
	payments      map[string]bool
	usages        map[usageKey]*usageRow
	usagesByID    map[int64]*usageRow
	nextBookingID int64
	nextUsageID   int64
}

type bookingPair struct {
	athleteID  int64
	timeslotID int64
}

type usageKey struct {
	customerID int64
	athleteID  int64
	packageID  int64
}

type usageRow struct {
	purchased int
	remaining int
}

func newStubDB(capacity map[int64]int) *stubDB {
	db := &stubDB{
		capacity:   capacity,
		slotLocks:  make(map[int64]*sync.Mutex),
		bookings:   make(map[bookingPair]bool),
		payments:   make(map[string]bool),
		usages:     make(map[usageKey]*usageRow),
		usagesByID: make(map[int64]*usageRow),
	}
	for id := range capacity {
		db.slotLocks[id] = &sync.Mutex{}
	}
	return db
}

func (db *stubDB) begin() *stubTx {
	return &stubTx{db: db}
}

func (db *stubDB) addBooking(athleteID, timeslotID int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.bookings[bookingPair{athleteID, timeslotID}] = true
}

func (db *stubDB) activeBookings(timeslotID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int
	for pair := range db.bookings {
		if pair.timeslotID == timeslotID {
			n++
		}
	}
	return n
}

func (db *stubDB) seedUsage(customerID, athleteID, packageID int64, purchased, remaining int) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextUsageID++
	row := &usageRow{purchased: purchased, remaining: remaining}
	db.usages[usageKey{customerID, athleteID, packageID}] = row
	db.usagesByID[db.nextUsageID] = row
	return db.nextUsageID
}

func (db *stubDB) usage(customerID, athleteID, packageID int64) usageRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	if row, ok := db.usages[usageKey{customerID, athleteID, packageID}]; ok {
		return *row
	}
	return usageRow{}
}

// QueryRow serves the autocommit debit statement, which production runs on
// the pool rather than inside a transaction.
func (db *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if !strings.Contains(sql, "GREATEST(sessions_remaining") {
		return stubRow{err: fmt.Errorf("unexpected query: %s", sql)}
	}
	usageID := args[0].(int64)
	sessions := args[1].(int)

	db.mu.Lock()
	defer db.mu.Unlock()
	row, ok := db.usagesByID[usageID]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	row.remaining -= sessions
	if row.remaining < 0 {
		row.remaining = 0
	}
	return stubRow{vals: []any{row.remaining}}
}

type creditDelta struct {
	key      usageKey
	sessions int
}

type stubTx struct {
	db             *stubDB
	held           []*sync.Mutex
	stagedBookings []bookingPair
	stagedPayments []string
	stagedCredits  []creditDelta
	closed         bool
}

func (t *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "FOR UPDATE"):
		slot := args[0].(int64)
		lock, ok := t.db.slotLocks[slot]
		if !ok {
			return stubRow{err: pgx.ErrNoRows}
		}
		lock.Lock()
		t.held = append(t.held, lock)
		return stubRow{vals: []any{t.db.capacity[slot]}}

	case strings.Contains(sql, "INSERT INTO bookings"):
		pair := bookingPair{args[1].(int64), args[2].(int64)}
		t.db.mu.Lock()
		exists := t.db.bookings[pair]
		t.db.mu.Unlock()
		for _, staged := range t.stagedBookings {
			if staged == pair {
				exists = true
			}
		}
		if exists {
			return stubRow{err: pgx.ErrNoRows}
		}
		t.stagedBookings = append(t.stagedBookings, pair)
		t.db.mu.Lock()
		t.db.nextBookingID++
		id := t.db.nextBookingID
		t.db.mu.Unlock()
		return stubRow{vals: []any{id, time.Now()}}
	}
	return stubRow{err: fmt.Errorf("unexpected query: %s", sql)}
}

func (t *stubTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if !strings.Contains(sql, "SELECT athlete_id FROM bookings") {
		return nil, fmt.Errorf("unexpected query: %s", sql)
	}
	slot := args[0].(int64)
	var rows [][]any
	t.db.mu.Lock()
	for pair := range t.db.bookings {
		if pair.timeslotID == slot {
			rows = append(rows, []any{pair.athleteID})
		}
	}
	t.db.mu.Unlock()
	for _, pair := range t.stagedBookings {
		if pair.timeslotID == slot {
			rows = append(rows, []any{pair.athleteID})
		}
	}
	return &stubRows{rows: rows}, nil
}

func (t *stubTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "INSERT INTO payments"):
		txID := args[3].(string)
		t.db.mu.Lock()
		exists := t.db.payments[txID]
		t.db.mu.Unlock()
		for _, staged := range t.stagedPayments {
			if staged == txID {
				exists = true
			}
		}
		if exists {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		t.stagedPayments = append(t.stagedPayments, txID)
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "INSERT INTO package_usage"):
		key := usageKey{args[0].(int64), args[1].(int64), args[2].(int64)}
		t.stagedCredits = append(t.stagedCredits, creditDelta{key: key, sessions: args[3].(int)})
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "UPDATE orders"):
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", sql)
}

func (t *stubTx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.db.mu.Lock()
	for _, pair := range t.stagedBookings {
		t.db.bookings[pair] = true
	}
	for _, txID := range t.stagedPayments {
		t.db.payments[txID] = true
	}
	for _, c := range t.stagedCredits {
		row, ok := t.db.usages[c.key]
		if !ok {
			t.db.nextUsageID++
			row = &usageRow{}
			t.db.usages[c.key] = row
			t.db.usagesByID[t.db.nextUsageID] = row
		}
		row.purchased += c.sessions
		row.remaining += c.sessions
	}
	t.db.mu.Unlock()
	t.release()
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	if t.closed {
		return nil
	}
	t.stagedBookings, t.stagedPayments, t.stagedCredits = nil, nil, nil
	t.release()
	return nil
}

func (t *stubTx) release() {
	for _, lock := range t.held {
		lock.Unlock()
	}
	t.held = nil
	t.closed = true
}

func (t *stubTx) Begin(context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("nested tx") }
func (t *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Conn() *pgx.Conn { return nil }

var _ pgx.Tx = (*stubTx)(nil)

type stubRow struct {
	err  error
	vals []any
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if err := assignValue(d, r.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

type stubRows struct {
	rows [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		if err := assignValue(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func assignValue(dest, val any) error {
	switch d := dest.(type) {
	case *int:
		*d = val.(int)
	case *int64:
		*d = val.(int64)
	case *time.Time:
		*d = val.(time.Time)
	default:
		return fmt.Errorf("unsupported scan target %T", dest)
	}
	return nil
}
