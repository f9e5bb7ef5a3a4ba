package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "CORS_ORIGINS", "CLIENT_URL", "LEDGER_DRIVER", "SMTP_PORT", "SMTP_IMPLICIT_TLS", "CLAIM_RECIPIENTS", "ARCHIVE_ENABLED"} {
		t.Setenv(k, "")
	}
	e := Load()
	if e.Port != "3001" {
		t.Fatalf("port default: %q", e.Port)
	}
	if len(e.CORSOrigins) != 1 || e.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("cors default: %v", e.CORSOrigins)
	}
	if e.LedgerDriver != "sqlite3" || !e.LedgerAutoMigrate {
		t.Fatalf("ledger defaults: %s %v", e.LedgerDriver, e.LedgerAutoMigrate)
	}
	if !e.SMTP.ImplicitTLS || e.SMTP.Port != "465" {
		t.Fatalf("port 465 should imply TLS: %+v", e.SMTP)
	}
	if e.SMTP.Configured() {
		t.Fatal("smtp without host/recipients must not report configured")
	}
	if !e.ArchiveEnabled || !e.MaskCardNumbers {
		t.Fatal("archive and masking default on")
	}
	if e.Eligibility.Timeout != 5*time.Second {
		t.Fatalf("eligibility timeout default: %v", e.Eligibility.Timeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLAIM_RECIPIENTS", " a@x.ru, ,b@x.ru ")
	t.Setenv("SMTP_HOST", "smtp.example")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_FROM", "info@example")
	t.Setenv("ELIGIBILITY_TIMEOUT_MS", "-5")
	t.Setenv("ARCHIVE_ENABLED", "false")
	e := Load()
	if len(e.SMTP.Recipients) != 2 || e.SMTP.Recipients[1] != "b@x.ru" {
		t.Fatalf("recipients: %v", e.SMTP.Recipients)
	}
	if e.SMTP.ImplicitTLS {
		t.Fatal("587 should default to STARTTLS")
	}
	if !e.SMTP.Configured() {
		t.Fatal("smtp should be configured")
	}
	if e.Eligibility.Timeout != 5*time.Second {
		t.Fatalf("invalid timeout should fall back to default, got %v", e.Eligibility.Timeout)
	}
	if e.ArchiveEnabled {
		t.Fatal("archive override ignored")
	}
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", "json")
	logger.SetOutput(&buf)
	LogError(logger, "ledger", "Create", "insert failed", map[string]string{"track": "T1"}, errors.New("boom"))
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if rec["module"] != "ledger" || rec["msg"] != "boom" || rec["level"] != logrus.ErrorLevel.String() {
		t.Fatalf("unexpected record: %v", rec)
	}
}
