package security

import (
	"strconv"
	"testing"
	"time"
)

func TestOTPGenerateRange(t *testing.T) {
	gen := NewOTPGenerator()

	for i := 0; i < 500; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if len(code) != OTPLength {
			t.Fatalf("expected %d digits, got %q", OTPLength, code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code is not numeric: %q", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code out of range: %d", n)
		}
	}
}

func TestOTPExpiryFromNow(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	gen := NewOTPGenerator().WithClock(func() time.Time { return now })

	if got := gen.ExpiryFromNow(); !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry: %s", got)
	}
}

func TestOTPIsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	gen := NewOTPGenerator().WithClock(func() time.Time { return now })

	future := now.Add(time.Second)
	past := now.Add(-time.Second)

	if gen.IsExpired(&future) {
		t.Fatal("future expiry reported as expired")
	}
	if !gen.IsExpired(&past) {
		t.Fatal("past expiry reported as valid")
	}
	if !gen.IsExpired(&now) {
		t.Fatal("expiry equal to now should count as expired")
	}
	if !gen.IsExpired(nil) {
		t.Fatal("missing expiry should count as expired")
	}
}
