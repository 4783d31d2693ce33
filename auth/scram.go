package auth

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"sync"

	"github.com/xdg-go/scram"
)

// scramAuthenticator authenticates via SCRAM-SHA-1 or SCRAM-SHA-256 (§4.3),
// delegating the RFC 5802 math to github.com/xdg-go/scram rather than
// hand-rolling the HMAC/salt/iteration client state machine — the same
// choice the FerretDB wire client makes for the same mechanism.
type scramAuthenticator struct {
	mechanism string
	hashGen   scram.HashGeneratorFcn
	cred      *Cred
}

func newScramSHA1Authenticator(cred *Cred) (Authenticator, error) {
	return &scramAuthenticator{mechanism: SCRAMSHA1, hashGen: sha1.New, cred: cred}, nil
}

func newScramSHA256Authenticator(cred *Cred) (Authenticator, error) {
	return &scramAuthenticator{mechanism: SCRAMSHA256, hashGen: sha256.New, cred: cred}, nil
}

func (a *scramAuthenticator) Mechanism() string { return a.mechanism }

func (a *scramAuthenticator) Auth(ctx context.Context, cfg *Config) error {
	password := a.cred.Password
	if a.mechanism == SCRAMSHA1 {
		// MongoDB's SCRAM-SHA-1 password is hex(md5("user:mongo:pass")) for
		// backward compatibility with the retired MONGODB-CR mechanism;
		// SCRAM-SHA-256 uses the SASLprep'd password as-is.
		password = mongoCRDigest(a.cred.Username, a.cred.Password)
	}

	client, err := a.hashGen.NewClient(a.cred.Username, password, "")
	if err != nil {
		return newAuthError(a.mechanism, "failed to construct scram client", err)
	}
	conv := client.NewConversation()

	adapter := &scramSaslAdapter{mechanism: a.mechanism, conv: conv}
	return conductSaslConversation(ctx, cfg, a.cred.Source, adapter)
}

// scramSaslAdapter wraps an *scram.ClientConversation as a SaslClient.
type scramSaslAdapter struct {
	mechanism string
	conv      *scram.ClientConversation
	mu        sync.Mutex
	done      bool
}

func (a *scramSaslAdapter) Start() (string, []byte, error) {
	payload, err := a.conv.Step("")
	if err != nil {
		return a.mechanism, nil, err
	}
	return a.mechanism, []byte(payload), nil
}

func (a *scramSaslAdapter) Next(challenge []byte) ([]byte, error) {
	payload, err := a.conv.Step(string(challenge))
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.done = a.conv.Done()
	a.mu.Unlock()
	return []byte(payload), nil
}

func (a *scramSaslAdapter) Completed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done || a.conv.Done()
}

