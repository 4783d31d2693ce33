package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/sealdb/driver/bsoncore"
)

// mongoCRAuthenticator implements the legacy MONGODB-CR mechanism, retired
// by MongoDB in favor of SCRAM but kept here for talking to very old
// deployments, grounded on the vlean-mgo example's loginClassic/nonce
// exchange (crMechanism name chosen the same way that example names it).
type mongoCRAuthenticator struct {
	cred *Cred
}

func newMongoDBCRAuthenticator(cred *Cred) (Authenticator, error) {
	return &mongoCRAuthenticator{cred: cred}, nil
}

func (a *mongoCRAuthenticator) Mechanism() string { return MongoDBCR }

func (a *mongoCRAuthenticator) Auth(ctx context.Context, cfg *Config) error {
	db := a.cred.Source
	if db == "" {
		db = defaultAuthDB
	}

	getNonceCmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		return bsoncore.AppendInt32Element(dst, "getnonce", 1)
	})
	reply, err := cfg.Conn.RunCommand(ctx, db, getNonceCmd)
	if err != nil {
		return newAuthError(MongoDBCR, "getnonce failed", err)
	}
	nonceVal, ok := reply.Lookup("nonce")
	if !ok {
		return newAuthError(MongoDBCR, "getnonce reply missing nonce", nil)
	}
	nonce, ok := nonceVal.StringValueOK()
	if !ok {
		return newAuthError(MongoDBCR, "getnonce reply nonce is not a string", nil)
	}

	digest := mongoCRDigest(a.cred.Username, a.cred.Password)
	key := md5Hex(nonce + a.cred.Username + digest)

	authCmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "authenticate", 1)
		dst = bsoncore.AppendStringElement(dst, "user", a.cred.Username)
		dst = bsoncore.AppendStringElement(dst, "nonce", nonce)
		dst = bsoncore.AppendStringElement(dst, "key", key)
		return dst
	})
	if _, err := cfg.Conn.RunCommand(ctx, db, authCmd); err != nil {
		return newAuthError(MongoDBCR, "authenticate command failed", err)
	}
	return nil
}

// mongoCRDigest computes hex(md5("user:mongo:pass")), the legacy password
// hash both MONGODB-CR and SCRAM-SHA-1 build on (§4.3), grounded on the
// vlean-mgo example's saslNewScram digest computation.
func mongoCRDigest(username, password string) string {
	return md5Hex(username + ":mongo:" + password)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
