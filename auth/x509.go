package auth

import (
	"context"
	"crypto/x509"

	"github.com/sealdb/driver/bsoncore"
)

// x509Authenticator implements MONGODB-X509: the TLS client certificate
// presented during the handshake stands in for a password, and the
// username (if omitted) is the certificate's subject DN, grounded on the
// vlean-mgo example's loginX509 authenticate-command shape.
type x509Authenticator struct {
	cred *Cred
}

func newMongoDBX509Authenticator(cred *Cred) (Authenticator, error) {
	if cred.Source != "" && cred.Source != "$external" {
		return nil, newAuthError(MongoDBX509, "source must be empty or $external", nil)
	}
	return &x509Authenticator{cred: cred}, nil
}

func (a *x509Authenticator) Mechanism() string { return MongoDBX509 }

func (a *x509Authenticator) Auth(ctx context.Context, cfg *Config) error {
	username := a.cred.Username
	if username == "" && len(a.cred.ClientCertificate) > 0 {
		cert, err := x509.ParseCertificate(a.cred.ClientCertificate)
		if err != nil {
			return newAuthError(MongoDBX509, "failed to parse client certificate", err)
		}
		username = cert.Subject.String()
	}

	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "authenticate", 1)
		dst = bsoncore.AppendStringElement(dst, "mechanism", MongoDBX509)
		if username != "" {
			dst = bsoncore.AppendStringElement(dst, "user", username)
		}
		return dst
	})
	if _, err := cfg.Conn.RunCommand(ctx, "$external", cmd); err != nil {
		return newAuthError(MongoDBX509, "authenticate command failed", err)
	}
	return nil
}
