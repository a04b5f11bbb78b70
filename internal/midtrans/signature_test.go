package midtrans

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	const serverKey = "SB-Mid-server-test"
	valid := Signature("order-abc", "200", "150000.00", serverKey)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"valid lowercase", valid, true},
		{"valid uppercase", strings.ToUpper(valid), true},
		{"empty", "", false},
		{"wrong digest", strings.Repeat("a", 128), false},
		{"truncated", valid[:64], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := VerifySignature("order-abc", "200", "150000.00", serverKey, tt.signature)
			if got != tt.want {
				t.Fatalf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignature_FieldSensitivity(t *testing.T) {
	t.Parallel()

	const serverKey = "SB-Mid-server-test"
	valid := Signature("order-abc", "200", "150000.00", serverKey)

	if VerifySignature("order-xyz", "200", "150000.00", serverKey, valid) {
		t.Fatal("signature should not verify for a different order ID")
	}
	if VerifySignature("order-abc", "201", "150000.00", serverKey, valid) {
		t.Fatal("signature should not verify for a different status code")
	}
	if VerifySignature("order-abc", "200", "150000.01", serverKey, valid) {
		t.Fatal("signature should not verify for a different gross amount")
	}
	if VerifySignature("order-abc", "200", "150000.00", "other-key", valid) {
		t.Fatal("signature should not verify for a different server key")
	}
}
