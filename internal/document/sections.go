// Package document renders a claim as a PDF with a decorative signature block.
package document

import (
	"github.com/Armour007/parcelclaims-backend/internal/claims"
	"github.com/Armour007/parcelclaims-backend/internal/normalize"
)

const (
	Title    = "ЗАЯВЛЕНИЕ О СТРАХОВОМ ВОЗМЕЩЕНИИ"
	Subtitle = "(ПОТЕРЯ/ПОВРЕЖДЕНИЕ ПОСЫЛКИ)"
)

// Row is one label/value line of a two-column table.
type Row struct {
	Label string
	Value string
}

// Section is a numbered table. Sub, when set, follows the table as a titled block.
type Section struct {
	Title string
	Rows  []Row
	Sub   *Section
}

// BuildSections lays out the claim in document order. Empty fields are replaced
// by placeholders here, so renderers never see a blank value.
func BuildSections(c claims.Claim, maskCard bool) []Section {
	created := normalize.NotSpecifiedF
	if !c.CreatedAt.IsZero() {
		created = normalize.DateTime(c.CreatedAt)
	}
	return []Section{
		{
			Title: "1. ОСНОВНАЯ ИНФОРМАЦИЯ",
			Rows: []Row{
				{"Дата создания:", created},
				{"Номер заявки:", normalize.Or(c.ClaimNumber, normalize.NotSpecifiedM)},
				{"Трек-номер посылки:", normalize.Or(c.TrackNumber, normalize.NotSpecifiedM)},
				{"Статус:", normalize.StatusLabel(statusOrNew(c.Status))},
			},
		},
		{
			Title: "2. ДАННЫЕ ЗАЯВИТЕЛЯ",
			Rows: []Row{
				{"Фамилия:", normalize.Or(c.LastName, normalize.NotSpecifiedF)},
				{"Имя:", normalize.Or(c.FirstName, normalize.NotSpecifiedN)},
				{"Отчество:", normalize.Or(c.Patronymic, normalize.NotSpecifiedN)},
				{"Дата рождения:", normalize.Or(normalize.Date(c.BirthDate), normalize.NotSpecifiedF)},
				{"Телефон:", phone(c.Phone)},
			},
		},
		{
			Title: "3. ПАСПОРТНЫЕ ДАННЫЕ",
			Rows: []Row{
				{"Тип документа:", normalize.Or(c.DocumentType, normalize.NotSpecifiedM)},
				{"Серия паспорта:", normalize.Or(c.PassportSeries, normalize.NotSpecifiedF)},
				{"Номер паспорта:", normalize.Or(c.PassportNumber, normalize.NotSpecifiedM)},
			},
		},
		payoutSection(c.Payout(), maskCard),
	}
}

func payoutSection(p claims.Payout, maskCard bool) Section {
	s := Section{
		Title: "4. СПОСОБ ВЫПЛАТЫ ВОЗМЕЩЕНИЯ",
		Rows:  []Row{{"Метод выплаты:", normalize.PaymentMethodLabel(p.Method())}},
	}
	switch v := p.(type) {
	case claims.SBPPayout:
		s.Sub = &Section{Title: "Данные для выплаты через СБП:", Rows: []Row{
			{"Банк получателя:", normalize.Or(v.BankName, normalize.NotSpecifiedM)},
			{"Телефон получателя:", phone(v.RecipientPhone)},
		}}
	case claims.CardPayout:
		card := v.CardNumber
		if maskCard && card != "" {
			card = normalize.MaskCard(card)
		}
		s.Sub = &Section{Title: "Данные банковской карты:", Rows: []Row{
			{"Номер карты:", normalize.Or(card, normalize.NotSpecifiedM)},
		}}
	case claims.AccountPayout:
		s.Sub = &Section{Title: "Банковские реквизиты:", Rows: []Row{
			{"БИК банка:", normalize.Or(v.BankBIC, normalize.NotSpecifiedM)},
			{"Номер счета:", normalize.Or(v.AccountNumber, normalize.NotSpecifiedM)},
			{"Название банка:", normalize.Or(v.BankName, normalize.NotSpecifiedM)},
		}}
	}
	return s
}

func phone(raw string) string {
	if raw == "" {
		return normalize.NotSpecifiedM
	}
	digits := normalize.Phone(raw)
	if len(digits) == 11 {
		return normalize.PhoneForDisplay(digits)
	}
	return raw
}

// preview documents are composed before a status is assigned
func statusOrNew(s claims.Status) claims.Status {
	if s == "" {
		return claims.StatusNew
	}
	return s
}
