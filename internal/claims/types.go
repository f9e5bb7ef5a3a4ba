// Package claims holds the claim data model shared by the ledger, the document composer and the intake flow.
package claims

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a stored claim. Only StatusNew is ever assigned.
type Status string

const (
	StatusNew Status = "new"
)

// PaymentMethod selects which payout fields are relevant.
type PaymentMethod string

const (
	MethodSBP     PaymentMethod = "sbp"
	MethodCard    PaymentMethod = "card"
	MethodAccount PaymentMethod = "account"
)

// ClaimInput is the untrusted claim form as submitted by the client.
type ClaimInput struct {
	Phone          string        `json:"phone" binding:"required,ruphone"`
	TrackNumber    string        `json:"trackNumber" binding:"required,notblank,max=64"`
	LastName       string        `json:"lastName,omitempty" binding:"max=128"`
	FirstName      string        `json:"firstName,omitempty" binding:"max=128"`
	Patronymic     string        `json:"patronymic,omitempty" binding:"max=128"`
	BirthDate      string        `json:"birthDate,omitempty" binding:"max=64"`
	DocumentType   string        `json:"documentType,omitempty" binding:"max=64"`
	PassportSeries string        `json:"passportSeries,omitempty" binding:"max=16"`
	PassportNumber string        `json:"passportNumber,omitempty" binding:"max=32"`
	PaymentMethod  PaymentMethod `json:"paymentMethod,omitempty" binding:"max=32"`
	BankName       string        `json:"bankName,omitempty" binding:"max=256"`
	RecipientPhone string        `json:"recipientPhone,omitempty" binding:"max=32"`
	CardNumber     string        `json:"cardNumber,omitempty" binding:"max=32"`
	BankBIC        string        `json:"bankBic,omitempty" binding:"max=16"`
	AccountNumber  string        `json:"accountNumber,omitempty" binding:"max=32"`
}

// Payout returns the payout details carried by the input, keeping only the
// fields that belong to the selected method.
func (in ClaimInput) Payout() Payout {
	switch PaymentMethod(strings.TrimSpace(string(in.PaymentMethod))) {
	case MethodSBP:
		return SBPPayout{BankName: in.BankName, RecipientPhone: in.RecipientPhone}
	case MethodCard:
		return CardPayout{CardNumber: in.CardNumber}
	case MethodAccount:
		return AccountPayout{BankBIC: in.BankBIC, AccountNumber: in.AccountNumber, BankName: in.BankName}
	default:
		return UnspecifiedPayout{Raw: strings.TrimSpace(string(in.PaymentMethod))}
	}
}

// Claim is the persisted record. The JSON encoding is what the ledger stores.
type Claim struct {
	ID          string    `json:"id"`
	ClaimNumber string    `json:"claimNumber"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Phone          string `json:"phone"`
	TrackNumber    string `json:"trackNumber"`
	LastName       string `json:"lastName,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	Patronymic     string `json:"patronymic,omitempty"`
	BirthDate      string `json:"birthDate,omitempty"`
	DocumentType   string `json:"documentType,omitempty"`
	PassportSeries string `json:"passportSeries,omitempty"`
	PassportNumber string `json:"passportNumber,omitempty"`

	PaymentMethod  PaymentMethod `json:"paymentMethod,omitempty"`
	BankName       string        `json:"bankName,omitempty"`
	RecipientPhone string        `json:"recipientPhone,omitempty"`
	CardNumber     string        `json:"cardNumber,omitempty"`
	BankBIC        string        `json:"bankBic,omitempty"`
	AccountNumber  string        `json:"accountNumber,omitempty"`
}

// FromInput copies the personal fields of in into a new Claim and attaches the
// payout variant. Generated fields are left zero.
func FromInput(in ClaimInput) Claim {
	c := Claim{
		Phone:          in.Phone,
		TrackNumber:    strings.TrimSpace(in.TrackNumber),
		LastName:       strings.TrimSpace(in.LastName),
		FirstName:      strings.TrimSpace(in.FirstName),
		Patronymic:     strings.TrimSpace(in.Patronymic),
		BirthDate:      strings.TrimSpace(in.BirthDate),
		DocumentType:   strings.TrimSpace(in.DocumentType),
		PassportSeries: strings.TrimSpace(in.PassportSeries),
		PassportNumber: strings.TrimSpace(in.PassportNumber),
	}
	c.SetPayout(in.Payout())
	return c
}

// Payout rebuilds the tagged payout variant from the stored fields.
func (c Claim) Payout() Payout {
	return ClaimInput{
		PaymentMethod:  c.PaymentMethod,
		BankName:       c.BankName,
		RecipientPhone: c.RecipientPhone,
		CardNumber:     c.CardNumber,
		BankBIC:        c.BankBIC,
		AccountNumber:  c.AccountNumber,
	}.Payout()
}

// SetPayout replaces every payout field with the ones carried by p.
func (c *Claim) SetPayout(p Payout) {
	c.BankName, c.RecipientPhone, c.CardNumber, c.BankBIC, c.AccountNumber = "", "", "", "", ""
	c.PaymentMethod = p.Method()
	switch v := p.(type) {
	case SBPPayout:
		c.BankName = strings.TrimSpace(v.BankName)
		c.RecipientPhone = v.RecipientPhone
	case CardPayout:
		c.CardNumber = strings.TrimSpace(v.CardNumber)
	case AccountPayout:
		c.BankBIC = strings.TrimSpace(v.BankBIC)
		c.AccountNumber = strings.TrimSpace(v.AccountNumber)
		c.BankName = strings.TrimSpace(v.BankName)
	}
}

// Payout is a tagged variant over PaymentMethod.
type Payout interface {
	Method() PaymentMethod
}

type SBPPayout struct {
	BankName       string
	RecipientPhone string
}

func (SBPPayout) Method() PaymentMethod { return MethodSBP }

type CardPayout struct {
	CardNumber string
}

func (CardPayout) Method() PaymentMethod { return MethodCard }

type AccountPayout struct {
	BankBIC       string
	AccountNumber string
	BankName      string
}

func (AccountPayout) Method() PaymentMethod { return MethodAccount }

// UnspecifiedPayout is used for an absent or unknown method. Raw keeps the
// submitted value so it can still be shown.
type UnspecifiedPayout struct {
	Raw string
}

func (p UnspecifiedPayout) Method() PaymentMethod { return PaymentMethod(p.Raw) }
