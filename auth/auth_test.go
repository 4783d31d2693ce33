package auth

import (
	"context"
	"testing"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
)

func TestCreateAuthenticatorDispatchesByMechanism(t *testing.T) {
	cases := []struct {
		mechanism string
		want      string
	}{
		{SCRAMSHA1, SCRAMSHA1},
		{SCRAMSHA256, SCRAMSHA256},
		{MongoDBX509, MongoDBX509},
		{MongoDBCR, MongoDBCR},
		{PLAIN, PLAIN},
		{"", SCRAMSHA256}, // default mechanism
	}
	for _, c := range cases {
		a, err := CreateAuthenticator(&Cred{Mechanism: c.mechanism, Username: "u", Password: "p"})
		if err != nil {
			t.Fatalf("mechanism %q: %v", c.mechanism, err)
		}
		if a.Mechanism() != c.want {
			t.Errorf("mechanism %q: got %q, want %q", c.mechanism, a.Mechanism(), c.want)
		}
	}
}

func TestCreateAuthenticatorUnknownMechanism(t *testing.T) {
	if _, err := CreateAuthenticator(&Cred{Mechanism: "BOGUS"}); err == nil {
		t.Fatal("expected an error for an unknown mechanism")
	}
}

func TestMongoCRDigestMatchesKnownVector(t *testing.T) {
	// hex(md5("user:mongo:pencil")) is the textbook MONGODB-CR/SCRAM-SHA-1
	// password-hashing example used throughout MongoDB's own docs.
	got := mongoCRDigest("user", "pencil")
	want := "1c33006ec1ffd90f9cadcbcc0e118200"
	if got != want {
		t.Fatalf("mongoCRDigest() = %q, want %q", got, want)
	}
}

// fakeConn is a minimal RunCommander stub for exercising the SASL loop and
// classic-auth command flow without a real server.
type fakeConn struct {
	kind      description.ServerKind
	responses []bsoncore.Document
	calls     []bsoncore.Document
}

func (f *fakeConn) Description() description.Server {
	return description.Server{Kind: f.kind}
}

func (f *fakeConn) RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	f.calls = append(f.calls, cmd)
	if len(f.responses) == 0 {
		return nil, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func TestConductSaslConversationSkipsArbiters(t *testing.T) {
	conn := &fakeConn{kind: description.RSArbiter}
	cfg := &Config{Conn: conn}

	client, _ := hashSHA256Conversation(t, "user", "pencil")
	if err := conductSaslConversation(context.Background(), cfg, "", client); err != nil {
		t.Fatalf("expected arbiters to skip auth cleanly, got: %v", err)
	}
	if len(conn.calls) != 0 {
		t.Fatalf("expected no commands to be run against an arbiter, got %d", len(conn.calls))
	}
}

func hashSHA256Conversation(t *testing.T, username, password string) (SaslClient, error) {
	t.Helper()
	a, err := newScramSHA256Authenticator(&Cred{Username: username, Password: password})
	if err != nil {
		t.Fatalf("newScramSHA256Authenticator: %v", err)
	}
	sa := a.(*scramAuthenticator)
	client, err := sa.hashGen.NewClient(username, password, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &scramSaslAdapter{mechanism: SCRAMSHA256, conv: client.NewConversation()}, nil
}
