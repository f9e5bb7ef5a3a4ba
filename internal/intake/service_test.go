package intake

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	database "github.com/Armour007/parcelclaims-backend/internal"
	"github.com/Armour007/parcelclaims-backend/internal/artifact"
	"github.com/Armour007/parcelclaims-backend/internal/bank"
	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/document"
	"github.com/Armour007/parcelclaims-backend/internal/eligibility"
	"github.com/Armour007/parcelclaims-backend/internal/ledger"
	"github.com/Armour007/parcelclaims-backend/internal/notify"
	"github.com/Armour007/parcelclaims-backend/internal/remote"
)

type fakeComposer struct {
	err   error
	calls int
}

func (f *fakeComposer) Compose(_ context.Context, c claims.Claim) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 " + c.ClaimNumber), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []notify.Job
	err  error
}

func (f *fakeNotifier) Enqueue(_ context.Context, j notify.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
	return f.err
}

type fakeLedger struct {
	findErr error
}

func (f fakeLedger) Find(context.Context, string, string) (*claims.Claim, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return nil, ledger.ErrNotFound
}

func (f fakeLedger) Create(context.Context, claims.ClaimInput) (*claims.Claim, error) {
	panic("create must not be reached")
}

func newLedger(t *testing.T, log logrus.FieldLogger) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, "sqlite3", filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}
	return ledger.New(db, nil, log)
}

func scenarioA() claims.ClaimInput {
	return claims.ClaimInput{
		Phone:          "+7 (911) 123-45-67",
		TrackNumber:    "TRK1",
		PaymentMethod:  claims.MethodSBP,
		BankName:       "Bank X",
		RecipientPhone: "9111234567",
	}
}

func TestCreateClaim_ScenariosAB(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := &fakeNotifier{}
	svc := New(Deps{Ledger: newLedger(t, log), Composer: &fakeComposer{}, Notifier: n, Archive: true, Log: log})
	ctx := WithRequestID(context.Background(), "req-1")

	out, err := svc.CreateClaim(ctx, scenarioA())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Claim.Phone != "79111234567" {
		t.Fatalf("stored phone %q", out.Claim.Phone)
	}
	if !regexp.MustCompile(`^CL-\d+-[0-9A-F]{6}$`).MatchString(out.Claim.ClaimNumber) {
		t.Fatalf("claim number %q", out.Claim.ClaimNumber)
	}
	if !out.Archived || !out.Queued || len(out.Signature.SignatureHex) != 64 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(n.jobs) != 1 || !bytes.HasPrefix(n.jobs[0].Attachment, []byte("PK\x03\x04")) || n.jobs[0].RequestID != "req-1" {
		t.Fatalf("notification job %+v", n.jobs)
	}
	if want := artifact.ComputeSignature([]byte("%PDF-1.4 "+out.Claim.ClaimNumber), time.Now()); out.Signature.SignatureHex != want.SignatureHex {
		t.Fatal("signature does not cover the composed document")
	}

	_, err = svc.CreateClaim(ctx, scenarioA())
	existing, ok := ledger.IsDuplicate(err)
	if !ok {
		t.Fatalf("want duplicate, got %v", err)
	}
	if existing.ClaimNumber != out.Claim.ClaimNumber {
		t.Fatalf("conflict must carry the original number, got %s", existing.ClaimNumber)
	}
	if len(n.jobs) != 1 {
		t.Fatal("conflict must not notify")
	}
}

func TestCreateClaim_ArchiveFailureFallsBack(t *testing.T) {
	log, hook := test.NewNullLogger()
	n := &fakeNotifier{}
	svc := New(Deps{Ledger: newLedger(t, log), Composer: &fakeComposer{}, Notifier: n, Archive: true, Log: log})
	svc.bundle = func([]byte, time.Time) ([]byte, artifact.Signature, error) {
		return nil, artifact.Signature{}, &artifact.ArchiveError{Err: errors.New("zip writer broke")}
	}

	out, err := svc.CreateClaim(context.Background(), scenarioA())
	if err != nil {
		t.Fatalf("archive failure must not fail the request: %v", err)
	}
	if out.Archived || !out.Queued {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(n.jobs) != 1 || !bytes.HasPrefix(n.jobs[0].Attachment, []byte("%PDF")) {
		t.Fatalf("raw document not attached: %+v", n.jobs)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["stage"] == StageArchiving {
			found = true
		}
	}
	if !found {
		t.Fatal("archive failure not logged")
	}
}

func TestCreateClaim_ArchiveDisabled(t *testing.T) {
	log, _ := test.NewNullLogger()
	n := &fakeNotifier{}
	svc := New(Deps{Ledger: newLedger(t, log), Composer: &fakeComposer{}, Notifier: n, Archive: false, Log: log})
	out, err := svc.CreateClaim(context.Background(), scenarioA())
	if err != nil || out.Archived {
		t.Fatalf("got %+v %v", out, err)
	}
	if !bytes.HasPrefix(n.jobs[0].Attachment, []byte("%PDF")) {
		t.Fatal("raw document expected")
	}
}

func TestCreateClaim_NotifyFailureStillSucceeds(t *testing.T) {
	log, hook := test.NewNullLogger()
	n := &fakeNotifier{err: &notify.SendError{Err: errors.New("bus closed")}}
	svc := New(Deps{Ledger: newLedger(t, log), Composer: &fakeComposer{}, Notifier: n, Archive: true, Log: log})
	out, err := svc.CreateClaim(context.Background(), scenarioA())
	if err != nil {
		t.Fatalf("notify failure must not fail the request: %v", err)
	}
	if out.Queued {
		t.Fatal("queued must be false")
	}
	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["stage"] == StageNotifying {
			logged = true
		}
	}
	if !logged {
		t.Fatal("notify failure not logged")
	}
}

func TestCreateClaim_FatalStages(t *testing.T) {
	log, _ := test.NewNullLogger()
	storage := &ledger.StorageError{Op: "find", Err: errors.New("disk I/O error")}
	n := &fakeNotifier{}
	comp := &fakeComposer{}
	svc := New(Deps{Ledger: fakeLedger{findErr: storage}, Composer: comp, Notifier: n, Log: log})
	_, err := svc.CreateClaim(context.Background(), scenarioA())
	var se *ledger.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("want StorageError, got %v", err)
	}
	if comp.calls != 0 || len(n.jobs) != 0 {
		t.Fatal("no stage may run after a storage failure")
	}

	gen := &document.GenerationError{Err: errors.New("font table broken")}
	svc = New(Deps{Ledger: newLedger(t, log), Composer: &fakeComposer{err: gen}, Notifier: n, Log: log})
	_, err = svc.CreateClaim(context.Background(), scenarioA())
	var ge *document.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("want GenerationError, got %v", err)
	}
	if len(n.jobs) != 0 {
		t.Fatal("nothing to notify without a document")
	}
}

func TestRenderPreview_BypassesLedger(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := New(Deps{Ledger: fakeLedger{}, Composer: &fakeComposer{}, Notifier: &fakeNotifier{}, Log: log})
	doc, err := svc.RenderPreview(context.Background(), scenarioA())
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != "%PDF-1.4 " {
		t.Fatalf("preview must have no claim number, got %q", doc)
	}
}

type fakeEligibility struct {
	v   *eligibility.Verdict
	err error
}

func (f fakeEligibility) Check(context.Context, string, string) (*eligibility.Verdict, error) {
	return f.v, f.err
}

func TestCheckEligibility(t *testing.T) {
	neg, price := -1.0, 250.0
	cases := []struct {
		name string
		elig fakeEligibility
		want EligibilityResult
	}{
		{"sentinel price wins over ok", fakeEligibility{v: &eligibility.Verdict{Status: "ok", Price: &neg}}, EligibilityResult{Message: MsgCheckData}},
		{"sentinel price wins over declined", fakeEligibility{v: &eligibility.Verdict{Status: "declined", Price: &neg}}, EligibilityResult{Message: MsgCheckData}},
		{"declined", fakeEligibility{v: &eligibility.Verdict{Status: "declined", Price: &price}}, EligibilityResult{Message: MsgBlocked}},
		{"error status", fakeEligibility{v: &eligibility.Verdict{Status: "error"}}, EligibilityResult{Message: MsgCheckData}},
		{"ok", fakeEligibility{v: &eligibility.Verdict{Status: "ok", Price: &price}}, EligibilityResult{Success: true, Price: &price}},
		{"missing fields", fakeEligibility{v: &eligibility.Verdict{}}, EligibilityResult{Success: true}},
		{"remote timeout", fakeEligibility{err: &eligibility.RemoteError{Op: "eligibility_check", Kind: remote.KindTimeout, Err: context.DeadlineExceeded}}, EligibilityResult{Message: MsgUnavailable}},
	}
	log, _ := test.NewNullLogger()
	for _, c := range cases {
		svc := New(Deps{Eligibility: c.elig, Log: log})
		got := svc.CheckEligibility(context.Background(), "79111234567", "TRK1")
		if got.Success != c.want.Success || got.Message != c.want.Message || (got.Price == nil) != (c.want.Price == nil) {
			t.Errorf("%s: got %+v", c.name, got)
		}
	}
}

type fakeBanks map[string]string

func (f fakeBanks) Name(_ context.Context, bic string) (string, error) {
	if bic == "down" {
		return "", &remote.Error{Op: "bank_lookup", Kind: remote.KindTransport, Err: errors.New("refused")}
	}
	if n, ok := f[bic]; ok {
		return n, nil
	}
	return "", bank.ErrNotFound
}

func TestBankName(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc := New(Deps{Banks: fakeBanks{"044525225": "ПАО Сбербанк"}, Log: log})
	if r := svc.BankName(context.Background(), "044525225"); !r.Success || r.BankName != "ПАО Сбербанк" {
		t.Fatalf("got %+v", r)
	}
	if r := svc.BankName(context.Background(), "1"); r.Success || r.Message != MsgBankNotFound {
		t.Fatalf("got %+v", r)
	}
	if r := svc.BankName(context.Background(), "down"); r.Success || r.Message != MsgBankUnavailable {
		t.Fatalf("got %+v", r)
	}
}
