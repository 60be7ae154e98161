package security

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPEM_InlinePEM(t *testing.T) {
	pemBytes, err := LoadPEM(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if !strings.Contains(string(pemBytes), "-----BEGIN") {
		t.Error("LoadPEM did not return PEM content")
	}
}

func TestLoadPEM_LiteralNewlines(t *testing.T) {
	flat := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)
	pemBytes, err := LoadPEM(flat)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(pemBytes) != testPublicKeyPEM {
		t.Error("LoadPEM should convert literal \\n to newlines")
	}
	if _, err := ParsePublicKey(flat); err != nil {
		t.Errorf("ParsePublicKey(flattened): %v", err)
	}
}

func TestLoadPEM_FilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	pemBytes, err := LoadPEM(path)
	if err != nil {
		t.Fatalf("LoadPEM: %v", err)
	}
	if string(pemBytes) != testPrivateKeyPEM {
		t.Error("LoadPEM content mismatch")
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Errorf("ParsePrivateKey(path): %v", err)
	}
}

func TestLoadPEM_Empty(t *testing.T) {
	for _, s := range []string{"", "   \n\t"} {
		if _, err := LoadPEM(s); err != ErrInvalidKey {
			t.Errorf("LoadPEM(%q): want ErrInvalidKey, got %v", s, err)
		}
	}
	if _, err := LoadPEM("/does/not/exist.pem"); err == nil {
		t.Error("LoadPEM missing file: want error")
	}
}

func TestParsePrivateKey_RSA(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if KeyAlg(signer.Public()) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(signer.Public()))
	}
}

func TestParseKeys_ECAndEd25519(t *testing.T) {
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ecDER, err := x509.MarshalECPrivateKey(ec)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	signer, err := ParsePrivateKey(encode("EC PRIVATE KEY", ecDER))
	if err != nil {
		t.Fatalf("ParsePrivateKey(EC): %v", err)
	}
	if KeyAlg(signer.Public()) != "ES256" {
		t.Errorf("EC KeyAlg = %q", KeyAlg(signer.Public()))
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	if _, err := ParsePrivateKey(encode("PRIVATE KEY", privDER)); err != nil {
		t.Fatalf("ParsePrivateKey(Ed25519): %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	parsed, err := ParsePublicKey(encode("PUBLIC KEY", pubDER))
	if err != nil {
		t.Fatalf("ParsePublicKey(Ed25519): %v", err)
	}
	if KeyAlg(parsed) != "EdDSA" {
		t.Errorf("Ed25519 KeyAlg = %q", KeyAlg(parsed))
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		pem  string
	}{
		{"not pem", "-----BEGIN garbage"},
		{"unknown block", encode("CERTIFICATE REQUEST", []byte{1, 2, 3})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePrivateKey(tc.pem); err == nil {
				t.Error("ParsePrivateKey: want error")
			}
			if _, err := ParsePublicKey(tc.pem); err == nil {
				t.Error("ParsePublicKey: want error")
			}
		})
	}
	if _, err := ParsePrivateKey(testPublicKeyPEM); err != ErrInvalidKey {
		t.Errorf("public key as private: want ErrInvalidKey, got %v", err)
	}
	if _, err := ParsePublicKey(testPrivateKeyPEM); err != ErrInvalidKey {
		t.Errorf("private key as public: want ErrInvalidKey, got %v", err)
	}
}

func TestKeyAlg_Unsupported(t *testing.T) {
	if alg := KeyAlg(nil); alg != "" {
		t.Errorf("KeyAlg nil: want empty string, got %q", alg)
	}
}

func encode(typ string, der []byte) string {
	var buf bytes.Buffer
	_ = pem.Encode(&buf, &pem.Block{Type: typ, Bytes: der})
	return buf.String()
}
