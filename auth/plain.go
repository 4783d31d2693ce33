package auth

import "context"

// plainAuthenticator implements the PLAIN SASL mechanism: username and
// password travel in the clear (hence only usable over TLS), grounded on
// the vlean-mgo example's loginPlain payload framing
// ("\x00user\x00password").
type plainAuthenticator struct {
	cred *Cred
}

func newPlainAuthenticator(cred *Cred) (Authenticator, error) {
	return &plainAuthenticator{cred: cred}, nil
}

func (a *plainAuthenticator) Mechanism() string { return PLAIN }

func (a *plainAuthenticator) Auth(ctx context.Context, cfg *Config) error {
	adapter := &plainSaslAdapter{username: a.cred.Username, password: a.cred.Password}
	return conductSaslConversation(ctx, cfg, a.cred.Source, adapter)
}

type plainSaslAdapter struct {
	username, password string
	done                bool
}

func (a *plainSaslAdapter) Start() (string, []byte, error) {
	payload := []byte("\x00" + a.username + "\x00" + a.password)
	a.done = true
	return PLAIN, payload, nil
}

func (a *plainSaslAdapter) Next(challenge []byte) ([]byte, error) {
	return nil, nil
}

func (a *plainSaslAdapter) Completed() bool { return a.done }
