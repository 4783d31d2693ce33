package driver

// Classification is the five-bucket error classification from §4.9, treated
// as normative over the distilled spec's terser framing (DESIGN.md's first
// Open Question decision): an error that doesn't match a known retryable
// name or network-failure shape is Fatal rather than assumed retryable.
type Classification int

const (
	Fatal Classification = iota
	Retryable
	ResumeChangeStream
	DuplicateKey
	ValidationError
)

// resumeChangeStreamCode is the one extra code that promotes an otherwise
// plain command error to ResumeChangeStream (§4.9).
const resumeChangeStreamCode = 234

// retryableCodeNames are the codeName strings §4.9 calls out by name.
var retryableCodeNames = map[string]bool{
	"NotMaster":                 true,
	"NotMasterOrSecondary":      true,
	"NotMasterNoSlaveOk":        true,
	"PrimarySteppedDown":        true,
	"InterruptedAtShutdown":     true,
	"ShutdownInProgress":        true,
	"HostNotFound":              true,
	"HostUnreachable":           true,
	"NetworkTimeout":            true,
	"SocketException":           true,
	"ExceededTimeLimit":         true,
	"StaleShardVersion":         true,
	"StaleEpoch":                true,
	"FailedToSatisfyReadPreference": true,
}

const duplicateKeyCode = 11000

// Classify sorts err into one of the five §4.9 buckets. A nil error is not
// meaningful to classify and is treated as Fatal defensively (callers should
// never call Classify on a nil error).
func Classify(err error) Classification {
	if err == nil {
		return Fatal
	}

	if isNetworkError(err) {
		return Retryable
	}

	switch e := err.(type) {
	case CommandError:
		if e.Code == resumeChangeStreamCode {
			return ResumeChangeStream
		}
		if e.Code == duplicateKeyCode {
			return DuplicateKey
		}
		if retryableCodeNames[e.Name] {
			return Retryable
		}
		return Fatal
	case WriteCommandError:
		for _, we := range e.WriteErrors {
			if we.Code == duplicateKeyCode {
				return DuplicateKey
			}
		}
		return ValidationError
	default:
		return Fatal
	}
}

// networkError is implemented by connection/wiremessage-layer errors that
// represent a transport failure rather than a server-reported command
// failure; any such error is unconditionally Retryable per §4.9's
// "Retryable (connection, ...)" bucket.
type networkError interface {
	error
	Disconnected() bool
}

func isNetworkError(err error) bool {
	ne, ok := err.(networkError)
	return ok && ne.Disconnected()
}
