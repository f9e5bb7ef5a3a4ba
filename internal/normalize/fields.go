package normalize

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
)

// Placeholders for fields the applicant left empty, by grammatical gender of the field name.
const (
	NotSpecifiedF = "Не указана"
	NotSpecifiedM = "Не указан"
	NotSpecifiedN = "Не указано"
)

// DisplayZone is the zone dates are rendered in.
var DisplayZone = loadZone("Europe/Moscow", 3*60*60)

func loadZone(name string, offset int) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("MSK", offset)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

var genitiveMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// ParseDate tries the ISO-ish layouts accepted from clients.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date renders s as DD.MM.YYYY. Unparseable input is returned unchanged.
func Date(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return s
	}
	return displayTime(s, t).Format("02.01.2006")
}

// DateLong renders s as "2 января 2006 г.". Unparseable input is returned unchanged.
func DateLong(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return s
	}
	t = displayTime(s, t)
	return fmt.Sprintf("%d %s %d г.", t.Day(), genitiveMonths[t.Month()-1], t.Year())
}

// DateTime renders t in the display zone as DD.MM.YYYY, HH:MM:SS.
func DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(DisplayZone).Format("02.01.2006, 15:04:05")
}

// Only instants carrying a time of day are shifted into the display zone;
// bare calendar dates such as a birth date stay on their own day.
func displayTime(raw string, t time.Time) time.Time {
	if strings.ContainsAny(raw, "T:") {
		return t.In(DisplayZone)
	}
	return t
}

// PaymentMethodLabel is the long label used in the PDF.
func PaymentMethodLabel(m claims.PaymentMethod) string {
	switch m {
	case claims.MethodSBP:
		return "СБП (Система быстрых платежей)"
	case claims.MethodCard:
		return "Банковская карта"
	case claims.MethodAccount:
		return "Банковский счет"
	case "":
		return NotSpecifiedM
	default:
		return string(m)
	}
}

// PaymentMethodShort is the label used in the e-mail summary.
func PaymentMethodShort(m claims.PaymentMethod) string {
	if m == claims.MethodSBP {
		return "СБП"
	}
	return PaymentMethodLabel(m)
}

// StatusLabel translates a claim status for display.
func StatusLabel(s claims.Status) string {
	if s == claims.StatusNew {
		return "Новая заявка"
	}
	return string(s)
}

// Or returns placeholder when v is blank.
func Or(v, placeholder string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}

// MaskCard keeps the last four digits of a card number visible.
func MaskCard(card string) string {
	digits := Phone(card)
	if utf8.RuneCountInString(digits) <= 4 {
		return card
	}
	return "**** **** **** " + digits[len(digits)-4:]
}
