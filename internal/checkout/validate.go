package checkout

import (
	"regexp"
	"strings"

	"github.com/rajbirverr/centurionintimates-sub000/internal/shipping"
)

// FieldErrors maps form field names to user-visible messages. Validation
// failures block the step transition and are surfaced per field; they are
// never retried automatically.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// 10-digit local mobile, optionally prefixed by a country code.
	phoneRe  = regexp.MustCompile(`^(\+?[0-9]{1,3}[\s-]?)?[6-9][0-9]{9}$`)
	cardRe   = regexp.MustCompile(`^[0-9]{16}$`)
	expiryRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvvRe    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// ValidateShipping checks the shipping form. A nil return means the
// Shipping -> Payment transition may proceed.
func ValidateShipping(info ShippingInfo) FieldErrors {
	errs := FieldErrors{}

	required := map[string]string{
		"first_name": info.FirstName,
		"last_name":  info.LastName,
		"email":      info.Email,
		"phone":      info.Phone,
		"address":    info.Address,
		"city":       info.City,
		"state":      info.State,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs[field] = "this field is required"
		}
	}

	if _, ok := errs["email"]; !ok && !emailRe.MatchString(info.Email) {
		errs["email"] = "enter a valid email address"
	}
	if _, ok := errs["phone"]; !ok && !phoneRe.MatchString(strings.ReplaceAll(info.Phone, " ", "")) {
		errs["phone"] = "enter a valid 10-digit mobile number"
	}
	if !shipping.ValidPostalCode(info.PostalCode) {
		errs["postal_code"] = "postal code must be exactly 6 digits"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidatePayment checks the fields for the selected payment method.
func ValidatePayment(info PaymentInfo) FieldErrors {
	errs := FieldErrors{}

	switch info.Method {
	case PaymentCard:
		if !cardRe.MatchString(strings.ReplaceAll(info.CardNumber, " ", "")) {
			errs["card_number"] = "card number must be 16 digits"
		}
		if strings.TrimSpace(info.CardName) == "" {
			errs["card_name"] = "name on card is required"
		}
		if !expiryRe.MatchString(info.Expiry) {
			errs["expiry"] = "expiry must be MM/YY"
		}
		if !cvvRe.MatchString(info.CVV) {
			errs["cvv"] = "CVV must be 3 or 4 digits"
		}
	case PaymentUPI:
		if !strings.Contains(info.UPIID, "@") {
			errs["upi_id"] = "enter a valid UPI ID"
		}
	case PaymentWallet:
		if !strings.Contains(info.WalletID, "@") {
			errs["wallet_id"] = "enter a valid wallet ID"
		}
	default:
		errs["method"] = "select a payment method"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
