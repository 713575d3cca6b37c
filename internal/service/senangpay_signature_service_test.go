package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSenangpaySignature_Deterministic(t *testing.T) {
	svc := NewSenangpaySignatureService()

	sig1 := svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 99.90, "MYR")
	sig2 := svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 99.90, "MYR")

	assert.Equal(t, sig1, sig2)
}

func TestSenangpaySignature_ShapeIsSHA256Hex(t *testing.T) {
	svc := NewSenangpaySignatureService()

	sig := svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 100, "MYR")

	assert.Len(t, sig, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig, "signature should be 64-char lowercase hex (SHA-256)")
}

func TestSenangpaySignature_EveryFieldMatters(t *testing.T) {
	svc := NewSenangpaySignatureService()
	base := svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 100.00, "MYR")

	variants := map[string]string{
		"secret":    svc.PaymentSignature("secret2", "sp-merchant", "ORDER-001", 100.00, "MYR"),
		"merchant":  svc.PaymentSignature("secret", "sp-other", "ORDER-001", 100.00, "MYR"),
		"reference": svc.PaymentSignature("secret", "sp-merchant", "ORDER-002", 100.00, "MYR"),
		"amount":    svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 100.01, "MYR"),
		"currency":  svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 100.00, "SGD"),
	}

	for field, sig := range variants {
		assert.NotEqual(t, base, sig, "changing %s must change the signature", field)
	}
}

func TestSenangpayResponseSignature(t *testing.T) {
	svc := NewSenangpaySignatureService()

	sig := svc.ResponseSignature("secret", "sp-merchant", "TXN-99", "1", "ORDER-001", 49.90, "MYR")
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig)

	other := svc.ResponseSignature("secret", "sp-merchant", "TXN-99", "0", "ORDER-001", 49.90, "MYR")
	assert.NotEqual(t, sig, other)
}

func TestSenangpayRefundSignature(t *testing.T) {
	svc := NewSenangpaySignatureService()

	sig := svc.RefundSignature("secret", "sp-merchant", "REFUND-01", 10.00, "ORDER-001")
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig)
	assert.NotEqual(t, sig, svc.RefundSignature("secret", "sp-merchant", "REFUND-01", 10.01, "ORDER-001"))
}

func TestSenangpayQuerySignatures(t *testing.T) {
	svc := NewSenangpaySignatureService()

	orderSig := svc.QueryOrderSignature("secret", "sp-merchant", "ORDER-001")
	txnSig := svc.QueryTransactionSignature("secret", "sp-merchant", "TXN-99")
	listSig := svc.QueryListSignature("secret", "sp-merchant", 1760000000, 1760086400)

	for _, sig := range []string{orderSig, txnSig, listSig} {
		assert.Regexp(t, `^[0-9a-f]{64}$`, sig)
	}

	// Timestamps participate as integers in the concatenation.
	assert.NotEqual(t, listSig, svc.QueryListSignature("secret", "sp-merchant", 1760000000, 1760086401))
	assert.NotEqual(t, listSig, svc.QueryListSignature("secret", "sp-merchant", 1760000001, 1760086400))
}

func TestSenangpayVerifySignature_CaseSensitive(t *testing.T) {
	svc := NewSenangpaySignatureService()
	sig := svc.PaymentSignature("secret", "sp-merchant", "ORDER-001", 100, "MYR")

	assert.True(t, svc.VerifySignature(sig, sig))
	assert.False(t, svc.VerifySignature(sig, strings.ToUpper(sig)),
		"Senangpay verification is case-sensitive, unlike Revpay")
	assert.False(t, svc.VerifySignature(sig, sig[:63]+"0"))
	assert.False(t, svc.VerifySignature(sig, ""))
}

func TestSenangpayFormatAmount(t *testing.T) {
	svc := NewSenangpaySignatureService()

	tests := []struct {
		amount float64
		want   int64
	}{
		{100.00, 10000},
		{99.99, 9999},
		{99.999, 10000},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.FormatAmount(tt.amount))
	}
}

func TestSenangpayAmountFromCents(t *testing.T) {
	svc := NewSenangpaySignatureService()

	assert.Equal(t, 100.00, svc.AmountFromCents(10000))
	assert.Equal(t, 99.99, svc.AmountFromCents(9999))

	// Round trip lands on the rounded cent.
	for _, amount := range []float64{0, 0.01, 99.99, 100, 12345.67} {
		assert.Equal(t, amount, svc.AmountFromCents(svc.FormatAmount(amount)))
	}
	assert.Equal(t, 100.00, svc.AmountFromCents(svc.FormatAmount(99.999)))
}

// The two gateways must never produce interchangeable signatures for the
// same logical request.
func TestGatewaySignaturesDiffer(t *testing.T) {
	rev := NewRevpaySignatureService()
	sp := NewSenangpaySignatureService()

	a := rev.PaymentSignature("secret", "M", "R", 100, "MYR")
	b := sp.PaymentSignature("secret", "M", "R", 100, "MYR")

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 128)
	assert.Len(t, b, 64)
}
