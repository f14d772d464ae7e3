package mandate

import (
	"strings"

	"github.com/linehub/billing/pkg/validator"
)

// Data is the mandate form as submitted by the customer.
type Data struct {
	AccountHolderName      string `json:"accountHolderName"`
	SortCode               string `json:"sortCode"`
	AccountNumber          string `json:"accountNumber"`
	SignatureName          string `json:"signatureName"`
	AccountHolderConfirmed bool   `json:"accountHolderConfirmed"`
	GuaranteeAcknowledged  bool   `json:"guaranteeAcknowledged"`
}

// Validate re-checks on the server everything the form checks in the browser.
// Separators are not stripped: a sort code must be exactly six digits.
func (d Data) Validate() error {
	return validator.Apply(
		validator.RequiredString("accountHolderName", d.AccountHolderName),
		validator.MaxLenString("accountHolderName", d.AccountHolderName, 40),
		validator.Digits("sortCode", d.SortCode, 6),
		validator.Digits("accountNumber", d.AccountNumber, 8),
		validator.RequiredString("signatureName", d.SignatureName),
		validator.True("accountHolderConfirmed", d.AccountHolderConfirmed, "account holder authorisation is required"),
		validator.True("guaranteeAcknowledged", d.GuaranteeAcknowledged, "the Direct Debit Guarantee must be acknowledged"),
	)
}

// Consent is the evidence captured with the submission.
type Consent struct {
	IP        string
	UserAgent string
}

// MaskAccountNumber keeps the last four digits: ****5678.
func MaskAccountNumber(n string) string {
	if len(n) < 4 {
		return strings.Repeat("*", len(n))
	}
	return "****" + n[len(n)-4:]
}

// MaskSortCode keeps the last pair: **-**-56.
func MaskSortCode(s string) string {
	if len(s) < 2 {
		return "**-**-**"
	}
	return "**-**-" + s[len(s)-2:]
}
