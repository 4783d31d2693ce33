package options

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func selfSignedPKCS8Fixture(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8 key: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestParseClientCertificateUnencryptedPKCS8(t *testing.T) {
	certPEM, keyPEM := selfSignedPKCS8Fixture(t)

	cert, err := ParseClientCertificate(certPEM, keyPEM, "")
	if err != nil {
		t.Fatalf("ParseClientCertificate: %v", err)
	}
	if cert.Leaf == nil || cert.Leaf.Subject.CommonName != "test-client" {
		t.Fatalf("expected parsed leaf certificate with CN test-client, got %+v", cert.Leaf)
	}
	if cert.PrivateKey == nil {
		t.Fatal("expected a parsed private key")
	}
}

func TestClientCertificateDERFromTLSConfig(t *testing.T) {
	certPEM, keyPEM := selfSignedPKCS8Fixture(t)
	cert, err := ParseClientCertificate(certPEM, keyPEM, "")
	if err != nil {
		t.Fatalf("ParseClientCertificate: %v", err)
	}

	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	der := clientCertificateDER(cfg)
	if len(der) == 0 {
		t.Fatal("expected non-empty DER bytes")
	}

	if der := clientCertificateDER(nil); der != nil {
		t.Fatalf("expected nil DER for a nil config, got %v", der)
	}
}
