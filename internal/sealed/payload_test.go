package sealed_test

import (
	"SealedAuction/internal/sealed"
	"errors"
	"testing"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	payload, err := sealed.Seal(kp.Public, 1250, 40)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	price, qty, err := sealed.Open(kp, payload)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if price != 1250 || qty != 40 {
		t.Errorf("got (%d, %d), want (1250, 40)", price, qty)
	}
}

func TestSeal_IsRandomized(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	a, _ := sealed.Seal(kp.Public, 1, 1)
	b, _ := sealed.Seal(kp.Public, 1, 1)
	if string(a) == string(b) {
		t.Error("identical intents must not produce identical ciphertexts")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	other, _ := sealed.GenerateKeyPair(nil)
	payload, _ := sealed.Seal(kp.Public, 5, 5)

	_, _, err := sealed.Open(other, payload)
	if !errors.Is(err, sealed.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	if _, _, err := sealed.Open(kp, []byte("not a box")); err == nil {
		t.Error("garbage should not open")
	}
}

func TestSeal_RejectsNegative(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	if _, err := sealed.Seal(kp.Public, -1, 1); err == nil {
		t.Error("negative price should be rejected")
	}
}

func TestParseKey(t *testing.T) {
	kp, _ := sealed.GenerateKeyPair(nil)
	k, err := sealed.ParseKey(sealed.EncodeKey(kp.Public))
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if *k != *kp.Public {
		t.Error("key did not survive hex encoding")
	}
	if _, err := sealed.ParseKey("abcd"); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestKeyPairFromPrivate(t *testing.T) {
	kp, err := sealed.GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	rebuilt, err := sealed.KeyPairFromPrivate(kp.Private)
	if err != nil {
		t.Fatalf("KeyPairFromPrivate: %v", err)
	}
	if *rebuilt.Public != *kp.Public {
		t.Fatal("derived public key does not match")
	}

	payload, err := sealed.Seal(kp.Public, 7, 3)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if p, q, err := sealed.Open(rebuilt, payload); err != nil || p != 7 || q != 3 {
		t.Fatalf("Open with rebuilt pair: %d %d %v", p, q, err)
	}
}
