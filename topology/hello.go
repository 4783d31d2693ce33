package topology

import (
	"github.com/sealdb/driver/address"
	"github.com/sealdb/driver/bsoncore"
	"github.com/sealdb/driver/description"
)

// helloCommand builds the monitoring "hello" command document, grounded on
// the teacher's x/mongo/driver/operation/hello.go command()/handshakeCommand().
// This package always speaks modern "hello" rather than legacy "isMaster"
// since it targets servers new enough to support it.
func helloCommand() bsoncore.Document {
	return bsoncore.BuildDocument(nil, func(dst []byte) []byte {
		dst = bsoncore.AppendInt32Element(dst, "hello", 1)
		return bsoncore.AppendBooleanElement(dst, "helloOk", true)
	})
}

// HelloCommand exposes helloCommand so a package building its own
// connection.Handshaker (mongo's client handshake, which layers auth on top
// of the same hello exchange a heartbeat sends) negotiates the same wire
// version/compression facts a monitor would, rather than drifting out of
// sync with a second hand-written hello command.
func HelloCommand() bsoncore.Document { return helloCommand() }

// ParseHelloReply exposes parseHelloReply for the same reason.
func ParseHelloReply(addr address.Address, reply bsoncore.Document) (description.Server, error) {
	return parseHelloReply(addr, reply)
}

// parseHelloReply translates a raw hello reply into a description.Server,
// grounded on the field names used throughout the teacher's
// x/mongo/driver/description package (the canonical hello response shape).
func parseHelloReply(addr address.Address, reply bsoncore.Document) (description.Server, error) {
	elems, err := reply.Elements()
	if err != nil {
		return description.Server{}, err
	}

	desc := description.Server{Address: addr, Kind: description.Unknown}

	var isPrimary, isSecondary, isArbiter, isMongos, isReplicaSet bool

	for _, elem := range elems {
		key := elem.Key()
		val := elem.Value()
		switch key {
		case "ismaster", "isWritablePrimary":
			isPrimary = val.Boolean()
		case "secondary":
			isSecondary = val.Boolean()
		case "arbiterOnly":
			isArbiter = val.Boolean()
		case "msg":
			if s, ok := val.StringValueOK(); ok && s == "isdbgrid" {
				isMongos = true
			}
		case "setName":
			desc.SetName, _ = val.StringValueOK()
			isReplicaSet = true
		case "setVersion":
			if v, ok := val.AsInt64(); ok {
				desc.SetVersion = uint64(v)
				desc.HasSetVersion = true
			}
		case "electionId":
			if oid, ok := objectIDFromValue(val); ok {
				desc.ElectionID = oid
				desc.HasElectionID = true
			}
		case "minWireVersion":
			if v, ok := val.AsInt64(); ok {
				desc.MinWireVersion = int32(v)
			}
		case "maxWireVersion":
			if v, ok := val.AsInt64(); ok {
				desc.MaxWireVersion = int32(v)
			}
		case "maxMessageSizeBytes":
			if v, ok := val.AsInt64(); ok {
				desc.MaxMessageSizeBytes = int32(v)
			}
		case "maxWriteBatchSize":
			if v, ok := val.AsInt64(); ok {
				desc.MaxWriteBatchSize = int32(v)
			}
		case "maxBsonObjectSize":
			if v, ok := val.AsInt64(); ok {
				desc.MaxBSONObjectSize = int32(v)
			}
		case "logicalSessionTimeoutMinutes":
			if v, ok := val.AsInt64(); ok {
				desc.LogicalSessionTimeoutMinutes = int32(v)
				desc.HasLogicalSessionTimeout = true
			}
		case "primary":
			if s, ok := val.StringValueOK(); ok {
				desc.Primary = address.Address(s)
			}
		case "me":
			if s, ok := val.StringValueOK(); ok {
				desc.Me = address.Address(s)
			}
		case "hosts":
			desc.Hosts = addressesFromArray(val)
		case "passives":
			desc.Passives = addressesFromArray(val)
		case "arbiters":
			desc.Arbiters = addressesFromArray(val)
		case "compression":
			desc.Compressors = stringsFromArray(val)
		case "lastWrite":
			if doc, ok := val.DocumentOK(); ok {
				if lwd, ok := doc.Lookup("lastWriteDate"); ok {
					if t, ok := lwd.DateTimeOK(); ok {
						desc.LastWriteDate = t
					}
				}
			}
		case "topologyVersion":
			if doc, ok := val.DocumentOK(); ok {
				desc.TopologyVersion = topologyVersionFromDoc(doc)
			}
		}
	}

	switch {
	case isMongos:
		desc.Kind = description.Mongos
	case isReplicaSet && isPrimary:
		desc.Kind = description.RSPrimary
	case isReplicaSet && isSecondary:
		desc.Kind = description.RSSecondary
	case isReplicaSet && isArbiter:
		desc.Kind = description.RSArbiter
	case isReplicaSet:
		desc.Kind = description.RSOther
	case isPrimary:
		desc.Kind = description.Standalone
	default:
		desc.Kind = description.Standalone
	}

	return desc, nil
}

func objectIDFromValue(v bsoncore.Value) (description.ObjectID, bool) {
	if v.Type != bsoncore.TypeObjectID || len(v.Data) < 12 {
		return description.ObjectID{}, false
	}
	var oid description.ObjectID
	copy(oid[:], v.Data[:12])
	return oid, true
}

func topologyVersionFromDoc(doc bsoncore.Document) *description.TopologyVersion {
	tv := &description.TopologyVersion{}
	if pid, ok := doc.Lookup("processId"); ok {
		if oid, ok := objectIDFromValue(pid); ok {
			tv.ProcessID = oid
		}
	}
	if counter, ok := doc.Lookup("counter"); ok {
		if v, ok := counter.AsInt64(); ok {
			tv.Counter = v
		}
	}
	return tv
}

func addressesFromArray(v bsoncore.Value) []address.Address {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	out := make([]address.Address, 0, len(values))
	for _, item := range values {
		if s, ok := item.StringValueOK(); ok {
			out = append(out, address.Address(s).Canonicalize())
		}
	}
	return out
}

func stringsFromArray(v bsoncore.Value) []string {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		if s, ok := item.StringValueOK(); ok {
			out = append(out, s)
		}
	}
	return out
}
