package intake

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Armour007/parcelclaims-backend/internal/bank"
	"github.com/Armour007/parcelclaims-backend/internal/eligibility"
)

// User-facing messages. Remote error details never reach the client.
const (
	MsgCheckData       = "Проверьте правильность введенных данных"
	MsgBlocked         = "Выплата по данному отправлению заблокирована. Обратитесь в службу поддержки"
	MsgUnavailable     = "Сервис проверки временно недоступен. Попробуйте позже"
	MsgBankNotFound    = "Банк с указанным БИК не найден"
	MsgBankUnavailable = "Не удалось получить название банка. Попробуйте позже"
)

// EligibilityResult is the answer to a parcel check.
type EligibilityResult struct {
	Success bool     `json:"success"`
	Price   *float64 `json:"price,omitempty"`
	Message string   `json:"message,omitempty"`
}

// CheckEligibility asks the tracking service about the parcel. The price sentinel
// wins over any status; then declined, then error.
func (s *Service) CheckEligibility(ctx context.Context, phone, trackNumber string) EligibilityResult {
	log := s.log.WithFields(logrus.Fields{"request_id": RequestID(ctx), "track_number": trackNumber})
	v, err := s.elig.Check(ctx, phone, trackNumber)
	if err != nil {
		var re *eligibility.RemoteError
		if errors.As(err, &re) {
			log = log.WithFields(logrus.Fields{"kind": re.Kind, "status_code": re.StatusCode})
		}
		log.WithError(err).Warn("eligibility check failed")
		return EligibilityResult{Message: MsgUnavailable}
	}
	switch {
	case v.Price != nil && *v.Price == eligibility.PriceInvalid:
		return EligibilityResult{Message: MsgCheckData}
	case v.Status == eligibility.StatusDeclined:
		return EligibilityResult{Message: MsgBlocked}
	case v.Status == eligibility.StatusError:
		return EligibilityResult{Message: MsgCheckData}
	}
	return EligibilityResult{Success: true, Price: v.Price}
}

// BankResult is the answer to a BIC lookup.
type BankResult struct {
	Success  bool   `json:"success"`
	BankName string `json:"bankName,omitempty"`
	Message  string `json:"message,omitempty"`
}

// BankName resolves bic to a bank name.
func (s *Service) BankName(ctx context.Context, bic string) BankResult {
	if s.banks == nil {
		return BankResult{Message: MsgBankUnavailable}
	}
	name, err := s.banks.Name(ctx, bic)
	switch {
	case errors.Is(err, bank.ErrNotFound):
		return BankResult{Message: MsgBankNotFound}
	case err != nil:
		s.log.WithError(err).WithField("request_id", RequestID(ctx)).Warn("bank lookup failed")
		return BankResult{Message: MsgBankUnavailable}
	}
	return BankResult{Success: true, BankName: name}
}
