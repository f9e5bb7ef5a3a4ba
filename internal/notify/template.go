package notify

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/normalize"
)

//go:embed templates/claim.html
var templateFS embed.FS

var summaryTmpl = template.Must(template.New("claim.html").Funcs(template.FuncMap{
	"row": func(label, value string) summaryRow { return summaryRow{Label: label, Value: value} },
}).ParseFS(templateFS, "templates/claim.html"))

type summaryRow struct {
	Label string
	Value string
}

type payoutDetails struct {
	Title string
	Rows  []summaryRow
}

type summary struct {
	ClaimNumber    string
	CreatedAt      string
	Status         string
	TrackNumber    string
	Phone          string
	LastName       string
	FirstName      string
	Patronymic     string
	BirthDate      string
	DocumentType   string
	PassportSeries string
	PassportNumber string
	Method         string
	Details        *payoutDetails
}

// Subject is the mail subject for a claim notification.
func Subject(claimNumber string) string {
	if claimNumber == "" {
		claimNumber = "без номера"
	}
	return "Создано новое заявление " + claimNumber
}

// RenderSummary renders the HTML body. Every claim field is escaped by html/template.
func RenderSummary(c claims.Claim, maskCard bool) (string, error) {
	status := string(c.Status)
	if c.Status == claims.StatusNew {
		status = "Новый"
	}
	s := summary{
		ClaimNumber:    c.ClaimNumber,
		CreatedAt:      normalize.DateTime(c.CreatedAt),
		Status:         status,
		TrackNumber:    c.TrackNumber,
		Phone:          displayPhone(c.Phone),
		LastName:       normalize.Or(c.LastName, normalize.NotSpecifiedF),
		FirstName:      normalize.Or(c.FirstName, normalize.NotSpecifiedN),
		Patronymic:     c.Patronymic,
		BirthDate:      normalize.Or(normalize.Date(c.BirthDate), normalize.NotSpecifiedF),
		DocumentType:   normalize.Or(c.DocumentType, normalize.NotSpecifiedM),
		PassportSeries: normalize.Or(c.PassportSeries, normalize.NotSpecifiedF),
		PassportNumber: normalize.Or(c.PassportNumber, normalize.NotSpecifiedM),
		Method:         normalize.PaymentMethodShort(c.PaymentMethod),
	}
	switch p := c.Payout().(type) {
	case claims.SBPPayout:
		s.Details = &payoutDetails{Title: "Данные для выплаты через СБП", Rows: []summaryRow{
			{"Банк:", normalize.Or(p.BankName, normalize.NotSpecifiedM)},
			{"Телефон получателя:", displayPhone(p.RecipientPhone)},
		}}
	case claims.CardPayout:
		if p.CardNumber != "" {
			card := p.CardNumber
			if maskCard {
				card = normalize.MaskCard(card)
			}
			s.Details = &payoutDetails{Title: "Данные банковской карты", Rows: []summaryRow{{"Номер карты:", card}}}
		}
	case claims.AccountPayout:
		s.Details = &payoutDetails{Title: "Банковские реквизиты", Rows: []summaryRow{
			{"БИК банка:", normalize.Or(p.BankBIC, normalize.NotSpecifiedM)},
			{"Номер счета:", normalize.Or(p.AccountNumber, normalize.NotSpecifiedM)},
			{"Название банка:", normalize.Or(p.BankName, normalize.NotSpecifiedM)},
		}}
	}

	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, s); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func displayPhone(raw string) string {
	if raw == "" {
		return normalize.NotSpecifiedM
	}
	if d := normalize.Phone(raw); len(d) == 11 {
		return normalize.PhoneForDisplay(d)
	}
	return raw
}
