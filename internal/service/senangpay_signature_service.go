package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"aura-device-cloud/pkg/money"
)

// SenangpaySignatureService implements ports.SenangpaySigner.
//
// Senangpay signs the concatenation of the request fields in a fixed order
// with the shared secret last, SHA-256, lowercase hex. Amounts enter the
// concatenation as integer cents. Unlike Revpay, verification is
// case-sensitive — the gateway echoes digests in the exact casing it
// computed them.
type SenangpaySignatureService struct{}

// NewSenangpaySignatureService creates a new Senangpay signer.
func NewSenangpaySignatureService() *SenangpaySignatureService {
	return &SenangpaySignatureService{}
}

// PaymentSignature signs an outbound payment request.
// Field order: merchant_id, reference_no, amount_cents, currency, secret.
func (s *SenangpaySignatureService) PaymentSignature(secret, merchantID, referenceNo string, amount float64, currency string) string {
	return s.digest(merchantID, referenceNo, s.formatCents(amount), currency, secret)
}

// ResponseSignature signs the fields of an asynchronous payment callback.
// Field order: merchant_id, transaction_id, response_code, reference_no,
// amount_cents, currency, secret.
func (s *SenangpaySignatureService) ResponseSignature(secret, merchantID, transactionID, responseCode, referenceNo string, amount float64, currency string) string {
	return s.digest(merchantID, transactionID, responseCode, referenceNo, s.formatCents(amount), currency, secret)
}

// RefundSignature signs a refund request.
// Field order: merchant_id, reference_no, refund_amount_cents,
// original_reference_no, secret.
func (s *SenangpaySignatureService) RefundSignature(secret, merchantID, referenceNo string, refundAmount float64, originalReferenceNo string) string {
	return s.digest(merchantID, referenceNo, s.formatCents(refundAmount), originalReferenceNo, secret)
}

// QueryOrderSignature signs an order-status query.
// Field order: merchant_id, reference_no, secret.
func (s *SenangpaySignatureService) QueryOrderSignature(secret, merchantID, referenceNo string) string {
	return s.digest(merchantID, referenceNo, secret)
}

// QueryTransactionSignature signs a transaction-status query.
// Field order: merchant_id, transaction_id, secret.
func (s *SenangpaySignatureService) QueryTransactionSignature(secret, merchantID, transactionID string) string {
	return s.digest(merchantID, transactionID, secret)
}

// QueryListSignature signs a transaction-list query over a UNIX-timestamp
// window. Field order: merchant_id, start_at, end_at, secret.
func (s *SenangpaySignatureService) QueryListSignature(secret, merchantID string, startAt, endAt int64) string {
	return s.digest(merchantID, strconv.FormatInt(startAt, 10), strconv.FormatInt(endAt, 10), secret)
}

// VerifySignature compares two Senangpay signatures byte-for-byte in
// constant time. Case matters here; see RevpaySignatureService for the
// case-insensitive counterpart.
func (s *SenangpaySignatureService) VerifySignature(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// FormatAmount renders the canonical Senangpay amount: integer cents,
// round half-up (99.999 -> 10000).
func (s *SenangpaySignatureService) FormatAmount(amount float64) int64 {
	return money.Cents(amount)
}

// AmountFromCents converts integer cents back to a decimal amount.
func (s *SenangpaySignatureService) AmountFromCents(cents int64) float64 {
	return money.FromCents(cents)
}

func (s *SenangpaySignatureService) formatCents(amount float64) string {
	return strconv.FormatInt(s.FormatAmount(amount), 10)
}

func (s *SenangpaySignatureService) digest(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "")))
	return hex.EncodeToString(sum[:])
}
