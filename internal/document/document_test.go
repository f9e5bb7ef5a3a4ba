package document

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
)

func rowValue(t *testing.T, s *Section, label string) string {
	t.Helper()
	for _, r := range s.Rows {
		if r.Label == label {
			return r.Value
		}
	}
	t.Fatalf("row %q missing in %q", label, s.Title)
	return ""
}

func TestBuildSections_CardWithoutNumber(t *testing.T) {
	c := claims.FromInput(claims.ClaimInput{Phone: "79111234567", TrackNumber: "TRK1", PaymentMethod: claims.MethodCard})
	secs := BuildSections(c, true)
	if len(secs) != 4 {
		t.Fatalf("want 4 sections, got %d", len(secs))
	}
	pay := secs[3]
	if got := rowValue(t, &pay, "Метод выплаты:"); got != "Банковская карта" {
		t.Fatalf("method label %q", got)
	}
	if pay.Sub == nil {
		t.Fatal("card sub-block missing")
	}
	if got := rowValue(t, pay.Sub, "Номер карты:"); got != "Не указан" {
		t.Fatalf("card number placeholder %q", got)
	}
}

func TestBuildSections_Placeholders(t *testing.T) {
	secs := BuildSections(claims.Claim{}, false)
	if got := rowValue(t, &secs[0], "Дата создания:"); got != "Не указана" {
		t.Fatalf("created %q", got)
	}
	if got := rowValue(t, &secs[0], "Статус:"); got != "Новая заявка" {
		t.Fatalf("status %q", got)
	}
	for _, want := range []struct {
		sec          int
		label, value string
	}{
		{1, "Фамилия:", "Не указана"},
		{1, "Имя:", "Не указано"},
		{1, "Отчество:", "Не указано"},
		{1, "Дата рождения:", "Не указана"},
		{1, "Телефон:", "Не указан"},
		{2, "Тип документа:", "Не указан"},
		{2, "Серия паспорта:", "Не указана"},
		{2, "Номер паспорта:", "Не указан"},
	} {
		if got := rowValue(t, &secs[want.sec], want.label); got != want.value {
			t.Errorf("%s = %q, want %q", want.label, got, want.value)
		}
	}
	if secs[3].Sub != nil {
		t.Fatal("absent method must not produce a sub-block")
	}
	if got := rowValue(t, &secs[3], "Метод выплаты:"); got != "Не указан" {
		t.Fatalf("absent method label %q", got)
	}
}

func TestBuildSections_PayoutVariants(t *testing.T) {
	sbp := claims.FromInput(claims.ClaimInput{PaymentMethod: claims.MethodSBP, BankName: "Bank X", RecipientPhone: "79111234567"})
	sub := BuildSections(sbp, true)[3].Sub
	if sub == nil || rowValue(t, sub, "Телефон получателя:") != "+7 (911) 123-45-67" {
		t.Fatalf("sbp block %+v", sub)
	}

	card := claims.FromInput(claims.ClaimInput{PaymentMethod: claims.MethodCard, CardNumber: "4111 1111 1111 1234"})
	if got := rowValue(t, BuildSections(card, true)[3].Sub, "Номер карты:"); got != "**** **** **** 1234" {
		t.Fatalf("masked card %q", got)
	}
	if got := rowValue(t, BuildSections(card, false)[3].Sub, "Номер карты:"); got != "4111 1111 1111 1234" {
		t.Fatalf("unmasked card %q", got)
	}

	acc := claims.FromInput(claims.ClaimInput{PaymentMethod: claims.MethodAccount, BankBIC: "044525225"})
	sub = BuildSections(acc, true)[3].Sub
	if rowValue(t, sub, "БИК банка:") != "044525225" || rowValue(t, sub, "Номер счета:") != "Не указан" {
		t.Fatalf("account block %+v", sub)
	}

	odd := claims.FromInput(claims.ClaimInput{PaymentMethod: "crypto"})
	pay := BuildSections(odd, true)[3]
	if pay.Sub != nil || rowValue(t, &pay, "Метод выплаты:") != "crypto" {
		t.Fatalf("unknown method %+v", pay)
	}
}

func TestCertificateID(t *testing.T) {
	a := CertificateID("CL-1-ABCDEF", "TRK1")
	if len(a) != 20 || strings.ToUpper(a) != a {
		t.Fatalf("bad id %q", a)
	}
	if a != CertificateID("CL-1-ABCDEF", "TRK1") || a == CertificateID("CL-1-ABCDEF", "TRK2") {
		t.Fatal("id must be derived from claim identity")
	}
}

func TestSignature_FallbacksStillRender(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &signatureRenderer{fonts: LoadFonts("", "", log)}
	for _, c := range []claims.Claim{
		{ClaimNumber: "CL-1-ABCDEF", TrackNumber: "TRK1", LastName: "Иванов"},
		{}, // no QR payload: placeholder box
	} {
		out, err := r.render(c, time.Now())
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		img, err := png.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if b := img.Bounds(); b.Dx() != sigWidth*sigScale || b.Dy() != sigHeight*sigScale {
			t.Fatalf("size %v", b)
		}
	}
}

func TestLoadFonts_MissingFilesFallBack(t *testing.T) {
	log, hook := test.NewNullLogger()
	bogus := filepath.Join(t.TempDir(), "bogus.ttf")
	if err := os.WriteFile(bogus, []byte("not a font"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := LoadFonts(filepath.Join(t.TempDir(), "missing.ttf"), bogus, log)
	if len(fs.Regular) == 0 || len(fs.Bold) == 0 {
		t.Fatal("fallback fonts not loaded")
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("want 2 warnings, got %d", len(hook.AllEntries()))
	}
}

func TestCompose_ProducesPDF(t *testing.T) {
	log, hook := test.NewNullLogger()
	cp := NewComposer(LoadFonts("", "", log), filepath.Join(t.TempDir(), "herb.png"), true, log)
	c := claims.FromInput(claims.ClaimInput{
		Phone:         "79111234567",
		TrackNumber:   "TRK1",
		LastName:      "Иванов",
		FirstName:     "Иван",
		BirthDate:     "1990-05-01",
		PaymentMethod: claims.MethodAccount,
		BankBIC:       "044525225",
		AccountNumber: "40817810099910004312",
		BankName:      strings.Repeat("Очень длинное название банка ", 10),
	})
	c.ClaimNumber = "CL-1700000000000-ABCDEF"
	c.Status = claims.StatusNew
	c.CreatedAt = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

	out, err := cp.Compose(context.Background(), c)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("not a PDF: %q", out[:8])
	}
	// missing emblem is logged once at construction
	if len(hook.AllEntries()) != 1 {
		t.Fatalf("want emblem warning only, got %d entries", len(hook.AllEntries()))
	}
}

func TestCompose_CancelledContext(t *testing.T) {
	log, _ := test.NewNullLogger()
	cp := NewComposer(LoadFonts("", "", log), "", false, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cp.Compose(ctx, claims.Claim{})
	var ge *GenerationError
	if !errors.As(err, &ge) || !errors.Is(err, context.Canceled) {
		t.Fatalf("want GenerationError wrapping Canceled, got %v", err)
	}
}
