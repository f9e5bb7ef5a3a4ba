package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus/hooks/test"

	database "github.com/Armour007/parcelclaims-backend/internal"
	"github.com/Armour007/parcelclaims-backend/internal/claims"
)

var numberRe = regexp.MustCompile(`^CL-\d{13}-[0-9A-F]{6}$`)

func newTestLedger(t *testing.T) (*Ledger, *sqlx.DB) {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "claims.db") + "?_journal_mode=WAL&_synchronous=OFF&_busy_timeout=5000"
	db, err := database.Connect(ctx, "sqlite3", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, _ := test.NewNullLogger()
	return New(db, nil, log), db
}

func scenarioA() claims.ClaimInput {
	return claims.ClaimInput{
		Phone:          "+7 (911) 123-45-67",
		TrackNumber:    "TRK1",
		PaymentMethod:  claims.MethodSBP,
		BankName:       "Bank X",
		RecipientPhone: "9111234567",
		CardNumber:     "4111111111111111",
	}
}

func TestCreate_NormalizesAndStamps(t *testing.T) {
	l, _ := newTestLedger(t)
	c, err := l.Create(context.Background(), scenarioA())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Phone != "79111234567" {
		t.Fatalf("phone not normalized: %q", c.Phone)
	}
	if c.RecipientPhone != "9111234567" {
		t.Fatalf("recipient phone: %q", c.RecipientPhone)
	}
	if c.CardNumber != "" {
		t.Fatal("card number must be dropped for sbp payout")
	}
	if !numberRe.MatchString(c.ClaimNumber) {
		t.Fatalf("unexpected claim number %q", c.ClaimNumber)
	}
	if c.Status != claims.StatusNew || c.ID == "" {
		t.Fatalf("status/id not set: %+v", c)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) || c.CreatedAt.Location() != time.UTC {
		t.Fatalf("timestamps: %v %v", c.CreatedAt, c.UpdatedAt)
	}

	got, err := l.Find(context.Background(), "8-911-123-45-67 ", "TRK1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("leading 8 is a different key, got %v %v", got, err)
	}
	got, err = l.Find(context.Background(), "+7 911 1234567", " TRK1 ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ClaimNumber != c.ClaimNumber || got.BankName != "Bank X" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreate_DuplicateReturnsOriginal(t *testing.T) {
	l, db := newTestLedger(t)
	first, err := l.Create(context.Background(), scenarioA())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	in := scenarioA()
	in.TrackNumber = "  TRK1\t"
	in.LastName = "Other"
	_, err = l.Create(context.Background(), in)
	existing, ok := IsDuplicate(err)
	if !ok {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if existing.ClaimNumber != first.ClaimNumber || existing.ID != first.ID {
		t.Fatalf("duplicate must carry the stored claim, got %+v", existing)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM claims`); err != nil || n != 1 {
		t.Fatalf("want 1 row, got %d (%v)", n, err)
	}
}

func TestCreate_RejectsBlankKey(t *testing.T) {
	l, db := newTestLedger(t)
	in := scenarioA()
	in.TrackNumber = " \t "
	if _, err := l.Create(context.Background(), in); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("blank track: expected ErrEmptyKey, got %v", err)
	}
	in = scenarioA()
	in.Phone = "  "
	if _, err := l.Create(context.Background(), in); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("blank phone: expected ErrEmptyKey, got %v", err)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM claims`); err != nil || n != 0 {
		t.Fatalf("want 0 rows, got %d (%v)", n, err)
	}
}

func TestCreate_ConcurrentSameKey(t *testing.T) {
	l, db := newTestLedger(t)
	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, dup := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Create(context.Background(), scenarioA())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if _, ok := IsDuplicate(err); ok {
				dup++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 || dup != workers-1 {
		t.Fatalf("created=%d dup=%d", created, dup)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM claims`); err != nil || n != 1 {
		t.Fatalf("want 1 row, got %d (%v)", n, err)
	}
}

func TestCreate_ThousandDistinctNumbers(t *testing.T) {
	l, _ := newTestLedger(t)
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		in := scenarioA()
		in.TrackNumber = fmt.Sprintf("TRK%04d", i)
		c, err := l.Create(context.Background(), in)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[c.ClaimNumber] {
			t.Fatalf("claim number %s issued twice", c.ClaimNumber)
		}
		seen[c.ClaimNumber] = true
	}
}

func TestCreate_RegeneratesOnNumberCollision(t *testing.T) {
	l, _ := newTestLedger(t)
	calls := 0
	l.newNumber = func(time.Time) (string, error) {
		calls++
		if calls <= 2 {
			return "CL-1-AAAAAA", nil
		}
		return "CL-1-BBBBBB", nil
	}
	if _, err := l.Create(context.Background(), scenarioA()); err != nil {
		t.Fatalf("first: %v", err)
	}
	in := scenarioA()
	in.TrackNumber = "TRK2"
	c, err := l.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if c.ClaimNumber != "CL-1-BBBBBB" || calls != 3 {
		t.Fatalf("got %s after %d calls", c.ClaimNumber, calls)
	}
}

func TestUniqueViolation_Classifies(t *testing.T) {
	_, db := newTestLedger(t)
	ins := `INSERT INTO claims(id, claim_number, phone, track_number, status, document, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`
	now := time.Now().UTC()
	if _, err := db.Exec(ins, "1", "CL-1", "7", "T", "new", "{}", now, now); err != nil {
		t.Fatal(err)
	}
	_, err := db.Exec(ins, "2", "CL-2", "7", "T", "new", "{}", now, now)
	if uniqueViolation(err) != violationKey {
		t.Fatalf("want key violation, got %v", err)
	}
	_, err = db.Exec(ins, "3", "CL-1", "8", "T", "new", "{}", now, now)
	if uniqueViolation(err) != violationNumber {
		t.Fatalf("want number violation, got %v", err)
	}
	if uniqueViolation(errors.New("boom")) != violationNone {
		t.Fatal("plain error is not a violation")
	}
}

func TestStorageErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error creating sqlmock: %v", err)
	}
	defer sqlDB.Close()
	log, _ := test.NewNullLogger()
	l := New(sqlx.NewDb(sqlDB, "sqlmock"), nil, log)

	sel := regexp.QuoteMeta(`SELECT document FROM claims WHERE phone=? AND track_number=? LIMIT 1`)
	mock.ExpectQuery(sel).WithArgs("79111234567", "TRK1").WillReturnError(errors.New("disk I/O error"))
	_, err = l.Find(context.Background(), "+7 911 123 45 67", "TRK1")
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "find" {
		t.Fatalf("want find StorageError, got %v", err)
	}

	mock.ExpectQuery(sel).WithArgs("79111234567", "TRK1").WillReturnRows(sqlmock.NewRows([]string{"document"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO claims`)).WillReturnError(errors.New("database is locked"))
	_, err = l.Create(context.Background(), scenarioA())
	if !errors.As(err, &se) || se.Op != "insert" {
		t.Fatalf("want insert StorageError, got %v", err)
	}
	if _, dup := IsDuplicate(err); dup {
		t.Fatal("storage failure is not a duplicate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestNewClaimNumber_SameMillisecond(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n, err := NewClaimNumber(now)
		if err != nil {
			t.Fatal(err)
		}
		if !numberRe.MatchString(n) {
			t.Fatalf("bad format %q", n)
		}
		seen[n] = true
	}
	// 200 draws from 2^24 values; a collision here is vanishingly unlikely
	if len(seen) < 199 {
		t.Fatalf("too many collisions: %d distinct", len(seen))
	}
}

func TestStripedLocker_Serializes(t *testing.T) {
	lk := NewStripedLocker(4)
	unlock, _ := lk.Lock(context.Background(), "a")
	acquired := make(chan struct{})
	go func() {
		u, _ := lk.Lock(context.Background(), "a")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}
