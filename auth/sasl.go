package auth

import (
	"context"

	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
)

// SaslClient is one side of a SASL conversation: build the initial payload,
// answer each server challenge, and report completion. This mirrors the
// teacher's mongo/private/auth/sasl.go SaslClient interface.
type SaslClient interface {
	Start() (mechanism string, payload []byte, err error)
	Next(challenge []byte) ([]byte, error)
	Completed() bool
}

// saslResponse is the shape common to saslStart/saslContinue replies.
type saslResponse struct {
	ConversationID int32
	Code           int32
	Done           bool
	Payload        []byte
}

func parseSaslResponse(doc bsoncore.Document) (saslResponse, error) {
	var resp saslResponse
	elems, err := doc.Elements()
	if err != nil {
		return resp, err
	}
	for _, elem := range elems {
		switch elem.Key() {
		case "conversationId":
			if v, ok := elem.Value().AsInt64(); ok {
				resp.ConversationID = int32(v)
			}
		case "code":
			if v, ok := elem.Value().AsInt64(); ok {
				resp.Code = int32(v)
			}
		case "done":
			resp.Done, _ = elem.Value().BooleanOK()
		case "payload":
			if _, data, ok := elem.Value().BinaryOK(); ok {
				resp.Payload = data
			}
		}
	}
	return resp, nil
}

// conductSaslConversation drives a SaslClient to completion over cfg.Conn,
// issuing saslStart then as many saslContinue round trips as the server
// demands. Arbiters never authenticate (§4.3), matching the teacher's early
// return in ConductSaslConversation.
func conductSaslConversation(ctx context.Context, cfg *Config, db string, client SaslClient) error {
	if cfg.Conn.Description().Kind == description.RSArbiter {
		return nil
	}
	if db == "" {
		db = defaultAuthDB
	}

	mechanism, payload, err := client.Start()
	if err != nil {
		return newAuthError(mechanism, "sasl start failed", err)
	}

	cmd := bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "saslStart", 1)
		dst = bsoncore.AppendStringElement(dst, "mechanism", mechanism)
		dst = bsoncore.AppendBinaryElement(dst, "payload", 0x00, payload)
		return dst
	})

	reply, err := cfg.Conn.RunCommand(ctx, db, cmd)
	if err != nil {
		return newAuthError(mechanism, "saslStart command failed", err)
	}
	resp, err := parseSaslResponse(reply)
	if err != nil {
		return newAuthError(mechanism, "malformed saslStart reply", err)
	}

	for {
		if resp.Code != 0 {
			return newAuthError(mechanism, "server rejected sasl step", nil)
		}
		if resp.Done && client.Completed() {
			return nil
		}

		payload, err = client.Next(resp.Payload)
		if err != nil {
			return newAuthError(mechanism, "sasl step failed", err)
		}
		if resp.Done && client.Completed() {
			return nil
		}

		cmd = bsoncore.BuildDocument(nil, func(dst []byte) []byte {
			dst = bsoncore.AppendInt32Element(dst, "saslContinue", 1)
			dst = bsoncore.AppendInt32Element(dst, "conversationId", resp.ConversationID)
			dst = bsoncore.AppendBinaryElement(dst, "payload", 0x00, payload)
			return dst
		})

		reply, err = cfg.Conn.RunCommand(ctx, db, cmd)
		if err != nil {
			return newAuthError(mechanism, "saslContinue command failed", err)
		}
		resp, err = parseSaslResponse(reply)
		if err != nil {
			return newAuthError(mechanism, "malformed saslContinue reply", err)
		}
	}
}
