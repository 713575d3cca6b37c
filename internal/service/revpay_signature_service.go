package service

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"aura-device-cloud/pkg/money"
)

// RevpaySignatureService implements ports.RevpaySigner.
//
// Revpay signs the concatenation of the shared secret followed by the
// request fields in a fixed order, SHA-512, lowercase hex. Amounts enter
// the concatenation as fixed two-decimal strings, so "100" and "100.00"
// for the same logical amount hash identically only after canonicalization
// through FormatAmount — callers must never concatenate raw amounts.
type RevpaySignatureService struct{}

// NewRevpaySignatureService creates a new Revpay signer.
func NewRevpaySignatureService() *RevpaySignatureService {
	return &RevpaySignatureService{}
}

// PaymentSignature signs an outbound payment request.
// Field order: secret, merchant_id, reference_no, amount, currency.
func (s *RevpaySignatureService) PaymentSignature(secret, merchantID, referenceNo string, amount float64, currency string) string {
	return s.digest(secret, merchantID, referenceNo, s.FormatAmount(amount), currency)
}

// ResponseSignature signs the fields of an asynchronous payment callback.
// Field order: secret, merchant_id, transaction_id, response_code,
// reference_no, amount, currency.
func (s *RevpaySignatureService) ResponseSignature(secret, merchantID, transactionID, responseCode, referenceNo string, amount float64, currency string) string {
	return s.digest(secret, merchantID, transactionID, responseCode, referenceNo, s.FormatAmount(amount), currency)
}

// RefundSignature signs a refund request.
// Field order: secret, merchant_id, reference_no, refund_amount,
// original_reference_no.
func (s *RevpaySignatureService) RefundSignature(secret, merchantID, referenceNo string, refundAmount float64, originalReferenceNo string) string {
	return s.digest(secret, merchantID, referenceNo, s.FormatAmount(refundAmount), originalReferenceNo)
}

// VerifySignature compares two Revpay signatures. Revpay returns uppercase
// hex digests while we generate lowercase, so the comparison is
// case-insensitive; both sides are normalized before the constant-time
// compare. This intentionally differs from Senangpay verification — do not
// unify the two.
func (s *RevpaySignatureService) VerifySignature(a, b string) bool {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	return subtle.ConstantTimeCompare([]byte(la), []byte(lb)) == 1
}

// FormatAmount renders the canonical Revpay amount: fixed two decimals,
// round half-up at the cent ("99.90", "0.00").
func (s *RevpaySignatureService) FormatAmount(amount float64) string {
	return money.FormatDecimal(amount)
}

func (s *RevpaySignatureService) digest(fields ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(fields, "")))
	return hex.EncodeToString(sum[:])
}
