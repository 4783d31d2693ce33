package options

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/youmark/pkcs8"
)

// ParseClientCertificate builds a tls.Certificate from a PEM-encoded
// certificate and private key, transparently decrypting the key with
// keyPassword when it's wrapped in an encrypted PKCS#8 block (the shape
// produced by `openssl pkcs8 -topk8 -v2 aes256`). tls.X509KeyPair has no
// notion of an encrypted key, so this exists purely to get past that one
// gap; everything else about constructing a *tls.Config (CA pool, server
// name, cipher policy) is left to the caller, consistent with this driver
// never building a *tls.Config on its own.
func ParseClientCertificate(certPEM, keyPEM []byte, keyPassword string) (tls.Certificate, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return tls.Certificate{}, fmt.Errorf("options: no PEM certificate block found")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("options: parse client certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return tls.Certificate{}, fmt.Errorf("options: no PEM key block found")
	}

	var key interface{}
	if keyPassword != "" {
		key, err = pkcs8.ParsePKCS8PrivateKey(keyBlock.Bytes, []byte(keyPassword))
	} else {
		key, err = pkcs8.ParsePKCS8PrivateKey(keyBlock.Bytes)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("options: parse client private key: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certBlock.Bytes},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// clientCertificateDER returns the DER-encoded leaf certificate out of cfg,
// the shape auth.Cred.ClientCertificate expects for MONGODB-X509's
// username-from-certificate fallback. Returns nil if cfg has no
// certificate configured.
func clientCertificateDER(cfg *tls.Config) []byte {
	if cfg == nil || len(cfg.Certificates) == 0 || len(cfg.Certificates[0].Certificate) == 0 {
		return nil
	}
	return cfg.Certificates[0].Certificate[0]
}
