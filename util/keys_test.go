package util

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func TestGeneratePemKeypair(t *testing.T) {
	pair, err := generatePemKeypair(1024)
	if err != nil {
		t.Fatalf("generatePemKeypair failed: %v", err)
	}

	if !strings.Contains(pair.Private, "RSA PRIVATE KEY") {
		t.Error("private key is not PKCS1 PEM")
	}
	if !strings.Contains(pair.Public, "PUBLIC KEY") {
		t.Error("public key is not PEM")
	}

	block, _ := pem.Decode([]byte(pair.Private))
	if block == nil {
		t.Fatal("private key PEM does not decode")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		t.Fatalf("private key does not parse: %v", err)
	}

	pubBlock, _ := pem.Decode([]byte(pair.Public))
	if pubBlock == nil {
		t.Fatal("public key PEM does not decode")
	}
	pub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		t.Fatalf("public key does not parse: %v", err)
	}

	if !priv.PublicKey.Equal(pub) {
		t.Error("public key does not match private key")
	}
}
