// Package ledger stores claims and enforces one claim per (normalized phone, track number).
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/normalize"
)

const numberAttempts = 3

// Ledger is the claim store. The zero value is not usable; see New.
type Ledger struct {
	db     *sqlx.DB
	locker Locker
	log    logrus.FieldLogger

	now       func() time.Time
	newNumber func(time.Time) (string, error)
}

// New wires a ledger over an open database. A nil locker means an in-process StripedLocker.
func New(db *sqlx.DB, locker Locker, log logrus.FieldLogger) *Ledger {
	if locker == nil {
		locker = NewStripedLocker(64)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{db: db, locker: locker, log: log, now: time.Now, newNumber: NewClaimNumber}
}

// Ping checks the underlying store.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Find looks a claim up by its dedup key. phone may be raw; it is normalized here
// the same way Create normalizes it. Returns ErrNotFound when absent.
func (l *Ledger) Find(ctx context.Context, phone, trackNumber string) (*claims.Claim, error) {
	var doc string
	q := l.db.Rebind(`SELECT document FROM claims WHERE phone=? AND track_number=? LIMIT 1`)
	err := l.db.GetContext(ctx, &doc, q, normalize.Phone(phone), strings.TrimSpace(trackNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}
	var c claims.Claim
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, &StorageError{Op: "decode", Err: err}
	}
	return &c, nil
}

// Create persists a new claim built from in. When a claim already exists for the
// same key it returns a *DuplicateError carrying that claim and stores nothing.
func (l *Ledger) Create(ctx context.Context, in claims.ClaimInput) (*claims.Claim, error) {
	c := claims.FromInput(in)
	c.Phone = normalize.Phone(c.Phone)
	if c.RecipientPhone != "" {
		c.RecipientPhone = normalize.Phone(c.RecipientPhone)
	}
	if c.Phone == "" || c.TrackNumber == "" {
		return nil, ErrEmptyKey
	}

	unlock, err := l.locker.Lock(ctx, c.Phone+"\x00"+c.TrackNumber)
	if err != nil {
		return nil, &StorageError{Op: "lock", Err: err}
	}
	defer unlock()

	existing, err := l.Find(ctx, c.Phone, c.TrackNumber)
	if err == nil {
		return nil, &DuplicateError{Existing: existing}
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := l.now().UTC()
	c.ID = uuid.NewString()
	c.Status = claims.StatusNew
	c.CreatedAt = now
	c.UpdatedAt = now

	for attempt := 1; ; attempt++ {
		num, err := l.newNumber(now)
		if err != nil {
			return nil, &StorageError{Op: "number", Err: err}
		}
		c.ClaimNumber = num
		err = l.insert(ctx, &c)
		if err == nil {
			return &c, nil
		}
		switch uniqueViolation(err) {
		case violationKey:
			// lost a race with another process that does not share our locker
			winner, ferr := l.Find(ctx, c.Phone, c.TrackNumber)
			if ferr != nil {
				return nil, ferr
			}
			return nil, &DuplicateError{Existing: winner}
		case violationNumber:
			if attempt < numberAttempts {
				l.log.WithField("attempt", attempt).Warn("claim number collision, regenerating")
				continue
			}
		}
		return nil, &StorageError{Op: "insert", Err: err}
	}
}

func (l *Ledger) insert(ctx context.Context, c *claims.Claim) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	q := l.db.Rebind(`INSERT INTO claims(id, claim_number, phone, track_number, status, document, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`)
	_, err = l.db.ExecContext(ctx, q, c.ID, c.ClaimNumber, c.Phone, c.TrackNumber, string(c.Status), string(doc), c.CreatedAt, c.UpdatedAt)
	return err
}

type violation int

const (
	violationNone violation = iota
	violationKey
	violationNumber
)

// uniqueViolation classifies a unique-index failure from either supported driver.
func uniqueViolation(err error) violation {
	var lite sqlite3.Error
	if errors.As(err, &lite) && lite.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(lite.Error(), "claim_number") {
			return violationNumber
		}
		return violationKey
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) && pg.Code == "23505" {
		if strings.Contains(pg.ConstraintName, "claim_number") {
			return violationNumber
		}
		return violationKey
	}
	return violationNone
}
