package certs

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerateProducesValidLeafCert(t *testing.T) {
	t.Parallel()
	info, err := Generate(24 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(info.TLSCert.Certificate) == 0 {
		t.Fatal("TLSCert has no certificate bytes")
	}

	leaf, err := x509.ParseCertificate(info.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if leaf.Subject.CommonName != "air" {
		t.Errorf("CommonName = %q, want %q", leaf.Subject.CommonName, "air")
	}
	if time.Until(leaf.NotAfter) <= 0 {
		t.Error("certificate already expired")
	}
	if time.Until(leaf.NotAfter) > 25*time.Hour {
		t.Errorf("NotAfter too far in the future: %v", leaf.NotAfter)
	}
}

func TestGenerateClampsExcessiveValidity(t *testing.T) {
	t.Parallel()
	info, err := Generate(1000 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(info.NotAfter) > maxValidity+time.Hour {
		t.Errorf("NotAfter %v exceeds clamp of %v", info.NotAfter, maxValidity)
	}
}

func TestFingerprintBase64IsStable(t *testing.T) {
	t.Parallel()
	info, err := Generate(24 * time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	a := info.FingerprintBase64()
	b := info.FingerprintBase64()
	if a != b {
		t.Errorf("FingerprintBase64 not stable: %q vs %q", a, b)
	}
	if len(a) == 0 {
		t.Error("empty fingerprint")
	}
}
