// Package auth implements the authentication mechanisms in §4.3:
// SCRAM-SHA-1, SCRAM-SHA-256, MONGODB-X509, MONGODB-CR (legacy), and PLAIN.
//
// The shape of this package — an Authenticator interface, a per-mechanism
// factory function, and a registry keyed by mechanism name — follows the
// teacher's x/mongo/driver/auth/mongodbaws.go, generalized from one
// mechanism to all of them.
package auth

import (
	"context"
	"fmt"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
)

// Cred holds the credentials and mechanism properties needed to
// authenticate a single connection (§4.3).
type Cred struct {
	Source      string
	Username    string
	Password    string
	PasswordSet bool
	Mechanism   string
	Props       map[string]string

	// ClientCertificate is the DER-encoded leaf certificate presented on
	// the TLS handshake, used by MONGODB-X509 to derive the username when
	// none is supplied explicitly.
	ClientCertificate []byte
}

// RunCommander is the minimal capability auth needs from a connection: run
// one command document against a database and get the raw reply back. The
// connection package's Connection type satisfies this.
type RunCommander interface {
	RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)
	Description() description.Server
}

// Config bundles everything an Authenticator.Auth call needs.
type Config struct {
	Conn        RunCommander
	ClusterTime bsoncore.Document // gossiped back on every reply, if present
}

// Authenticator runs one mechanism's login conversation over a connection.
type Authenticator interface {
	// Mechanism is the wire name of the mechanism ("SCRAM-SHA-256", ...).
	Mechanism() string
	// Auth runs the conversation to completion or returns an error.
	Auth(ctx context.Context, cfg *Config) error
}

// AuthError wraps a failure from a specific mechanism, matching the
// teacher's newAuthError/newError helpers.
type AuthError struct {
	Mechanism string
	Message   string
	Wrapped   error
}

func (e *AuthError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("auth error (%s): %s: %s", e.Mechanism, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Mechanism, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Wrapped }

func newAuthError(mechanism, msg string, wrapped error) error {
	return &AuthError{Mechanism: mechanism, Message: msg, Wrapped: wrapped}
}

// factory builds an Authenticator from a set of credentials.
type factory func(cred *Cred) (Authenticator, error)

var registry = map[string]factory{
	SCRAMSHA1:   newScramSHA1Authenticator,
	SCRAMSHA256: newScramSHA256Authenticator,
	MongoDBX509: newMongoDBX509Authenticator,
	MongoDBCR:   newMongoDBCRAuthenticator,
	PLAIN:       newPlainAuthenticator,
}

// CreateAuthenticator looks up the factory for cred.Mechanism and builds an
// Authenticator from it. An empty mechanism defaults to SCRAM, negotiated by
// the caller against the server's saslSupportedMechs (§4.3); this package
// itself does not negotiate, it only dispatches on an already-chosen name.
func CreateAuthenticator(cred *Cred) (Authenticator, error) {
	mechanism := cred.Mechanism
	if mechanism == "" {
		mechanism = SCRAMSHA256
	}
	f, ok := registry[mechanism]
	if !ok {
		return nil, fmt.Errorf("auth: unknown mechanism %q", mechanism)
	}
	return f(cred)
}

// Mechanism name constants (§4.3).
const (
	SCRAMSHA1   = "SCRAM-SHA-1"
	SCRAMSHA256 = "SCRAM-SHA-256"
	MongoDBX509 = "MONGODB-X509"
	MongoDBCR   = "MONGODB-CR"
	PLAIN       = "PLAIN"
)

const defaultAuthDB = "admin"
