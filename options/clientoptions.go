// Package options parses a mongodb:// URI (or accepts programmatic
// overrides) into ClientOptions, the typed configuration mongo.Client is
// built from.
package options

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sealdb/driver/auth"
	"github.com/sealdb/driver/event"
	"github.com/sealdb/driver/internal/logger"
)

// Credential mirrors auth.Cred, kept as a distinct exported type so callers
// configuring a Client don't need to import the auth package directly.
type Credential struct {
	AuthSource            string
	Username              string
	Password              string
	PasswordSet           bool
	AuthMechanism         string
	AuthMechanismProps    map[string]string
}

func (c Credential) toAuthCred(clientCertDER []byte) *auth.Cred {
	return &auth.Cred{
		Source:            c.AuthSource,
		Username:          c.Username,
		Password:          c.Password,
		PasswordSet:       c.PasswordSet,
		Mechanism:         c.AuthMechanism,
		Props:             c.AuthMechanismProps,
		ClientCertificate: clientCertDER,
	}
}

// Credential builds the auth.Cred a Client's handshake hands to
// auth.CreateAuthenticator, filling in the TLS client certificate's DER
// bytes for MONGODB-X509's username-from-certificate fallback. Returns nil
// when no credential was configured.
func (o *ClientOptions) Credential() *auth.Cred {
	if o.Auth == nil {
		return nil
	}
	return o.Auth.toAuthCred(clientCertificateDER(o.TLSConfig))
}

// ClientOptions is the fully resolved configuration a Client is built from,
// the receiving end of both ApplyURI and the programmatic SetX setters.
type ClientOptions struct {
	Hosts      []string
	AppName    string
	Auth       *Credential
	Compressors []string

	ConnectTimeout         time.Duration
	HeartbeatInterval      time.Duration
	LocalThreshold         time.Duration
	MaxConnIdleTime        time.Duration
	ServerSelectionTimeout time.Duration

	// Timeout is the client-side operation timeout (CSOT): the overall
	// deadline a single Client method call (InsertOne, Find, ...) gets when
	// the caller's context carries none of its own. Zero means no
	// Client-level deadline is imposed beyond whatever ctx already has.
	Timeout time.Duration

	MaxPoolSize uint64
	MinPoolSize uint64

	ReplicaSet   string
	Direct       bool
	RetryWrites  bool
	RetryReads   bool

	Database string

	TLSConfig *tls.Config

	Monitor *event.Registry
	Logger  *logger.Logger

	// retryWritesSet/retryReadsSet distinguish "this URI explicitly said
	// retryWrites=false" from "this URI never mentioned retryWrites", so
	// mergeParsed doesn't clobber the builder's retryWrites=true default
	// with a zero value the URI never actually specified.
	retryWritesSet bool
	retryReadsSet  bool
}

// Default values the teacher's own client options fall back to absent a URI
// or SetX override.
const (
	defaultConnectTimeout         = 30 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	defaultLocalThreshold         = 15 * time.Millisecond
	defaultServerSelectionTimeout = 30 * time.Second
	defaultMaxPoolSize            = 100
)

// ClientOptionsBuilder accumulates URI and SetX configuration, deferring
// errors until Validate is called, matching the teacher's "keep building,
// report errors at the end" ApplyURI posture.
type ClientOptionsBuilder struct {
	opts     ClientOptions
	warnings []string
	err      error
}

// Client returns a new, empty ClientOptionsBuilder with driver defaults
// applied.
func Client() *ClientOptionsBuilder {
	return &ClientOptionsBuilder{
		opts: ClientOptions{
			ConnectTimeout:         defaultConnectTimeout,
			HeartbeatInterval:      defaultHeartbeatInterval,
			LocalThreshold:         defaultLocalThreshold,
			ServerSelectionTimeout: defaultServerSelectionTimeout,
			MaxPoolSize:            defaultMaxPoolSize,
			RetryWrites:            true,
			RetryReads:             true,
		},
	}
}

// ApplyURI parses uri and merges it into the builder. Errors don't stop the
// chain; they surface from Validate, so SetX calls and further ApplyURI
// calls can still be chained the way the teacher's ClientOptionsBuilder
// allows.
func (c *ClientOptionsBuilder) ApplyURI(uri string) *ClientOptionsBuilder {
	if c.err != nil {
		return c
	}
	parsed, warnings, err := parseURI(uri)
	if err != nil {
		c.err = fmt.Errorf("error parsing uri: %w", err)
		return c
	}
	c.warnings = append(c.warnings, warnings...)
	mergeParsed(&c.opts, parsed)
	if c.opts.Logger != nil {
		for _, w := range warnings {
			c.opts.Logger.Print(logger.LevelInfo, logger.Message{
				Component: logger.ComponentConnection,
				Text:      w,
			})
		}
	}
	return c
}

// Warnings returns one message per unrecognized query option encountered
// across every ApplyURI call, in ApplyURI call order; the order among the
// warnings from a single URI is not defined.
func (c *ClientOptionsBuilder) Warnings() []string {
	return c.warnings
}

// Validate returns the first error recorded while building, or checks the
// accumulated options for an unusable combination (no hosts, and so on).
func (c *ClientOptionsBuilder) Validate() error {
	if c.err != nil {
		return c.err
	}
	if len(c.opts.Hosts) == 0 {
		return fmt.Errorf("options: at least one host is required")
	}
	if c.opts.Direct && len(c.opts.Hosts) > 1 {
		return fmt.Errorf("options: direct connections support exactly one host, got %d", len(c.opts.Hosts))
	}
	return nil
}

// ClientOptions returns the accumulated options, regardless of whether
// Validate would currently pass; callers that want the error checked first
// should call Validate explicitly.
func (c *ClientOptionsBuilder) ClientOptions() *ClientOptions {
	opts := c.opts
	return &opts
}

func (c *ClientOptionsBuilder) SetAppName(name string) *ClientOptionsBuilder {
	c.opts.AppName = name
	return c
}

func (c *ClientOptionsBuilder) SetHosts(hosts []string) *ClientOptionsBuilder {
	c.opts.Hosts = hosts
	return c
}

func (c *ClientOptionsBuilder) SetAuth(cred Credential) *ClientOptionsBuilder {
	c.opts.Auth = &cred
	return c
}

func (c *ClientOptionsBuilder) SetCompressors(compressors []string) *ClientOptionsBuilder {
	c.opts.Compressors = compressors
	return c
}

func (c *ClientOptionsBuilder) SetConnectTimeout(d time.Duration) *ClientOptionsBuilder {
	c.opts.ConnectTimeout = d
	return c
}

func (c *ClientOptionsBuilder) SetHeartbeatInterval(d time.Duration) *ClientOptionsBuilder {
	c.opts.HeartbeatInterval = d
	return c
}

func (c *ClientOptionsBuilder) SetLocalThreshold(d time.Duration) *ClientOptionsBuilder {
	c.opts.LocalThreshold = d
	return c
}

func (c *ClientOptionsBuilder) SetMaxConnIdleTime(d time.Duration) *ClientOptionsBuilder {
	c.opts.MaxConnIdleTime = d
	return c
}

func (c *ClientOptionsBuilder) SetServerSelectionTimeout(d time.Duration) *ClientOptionsBuilder {
	c.opts.ServerSelectionTimeout = d
	return c
}

// SetTimeout sets the client-side operation timeout (§5's per-operation
// deadline) applied to a Client method call whose ctx carries no deadline
// of its own.
func (c *ClientOptionsBuilder) SetTimeout(d time.Duration) *ClientOptionsBuilder {
	c.opts.Timeout = d
	return c
}

func (c *ClientOptionsBuilder) SetMaxPoolSize(n uint64) *ClientOptionsBuilder {
	c.opts.MaxPoolSize = n
	return c
}

func (c *ClientOptionsBuilder) SetMinPoolSize(n uint64) *ClientOptionsBuilder {
	c.opts.MinPoolSize = n
	return c
}

func (c *ClientOptionsBuilder) SetReplicaSet(name string) *ClientOptionsBuilder {
	c.opts.ReplicaSet = name
	return c
}

func (c *ClientOptionsBuilder) SetDirect(direct bool) *ClientOptionsBuilder {
	c.opts.Direct = direct
	return c
}

func (c *ClientOptionsBuilder) SetRetryWrites(retry bool) *ClientOptionsBuilder {
	c.opts.RetryWrites = retry
	return c
}

func (c *ClientOptionsBuilder) SetRetryReads(retry bool) *ClientOptionsBuilder {
	c.opts.RetryReads = retry
	return c
}

func (c *ClientOptionsBuilder) SetTLSConfig(cfg *tls.Config) *ClientOptionsBuilder {
	c.opts.TLSConfig = cfg
	return c
}

func (c *ClientOptionsBuilder) SetMonitor(r *event.Registry) *ClientOptionsBuilder {
	c.opts.Monitor = r
	return c
}

func (c *ClientOptionsBuilder) SetLogger(l *logger.Logger) *ClientOptionsBuilder {
	c.opts.Logger = l
	return c
}

// mergeParsed overlays non-zero fields from parsed onto dst; ApplyURI is
// additive so multiple URIs (or a URI followed by SetX calls made earlier in
// the chain) compose rather than clobber wholesale.
func mergeParsed(dst *ClientOptions, parsed *ClientOptions) {
	if len(parsed.Hosts) > 0 {
		dst.Hosts = parsed.Hosts
	}
	if parsed.Database != "" {
		dst.Database = parsed.Database
	}
	if parsed.Auth != nil {
		dst.Auth = parsed.Auth
	}
	if len(parsed.Compressors) > 0 {
		dst.Compressors = parsed.Compressors
	}
	if parsed.AppName != "" {
		dst.AppName = parsed.AppName
	}
	if parsed.ReplicaSet != "" {
		dst.ReplicaSet = parsed.ReplicaSet
	}
	if parsed.ConnectTimeout != 0 {
		dst.ConnectTimeout = parsed.ConnectTimeout
	}
	if parsed.HeartbeatInterval != 0 {
		dst.HeartbeatInterval = parsed.HeartbeatInterval
	}
	if parsed.LocalThreshold != 0 {
		dst.LocalThreshold = parsed.LocalThreshold
	}
	if parsed.MaxConnIdleTime != 0 {
		dst.MaxConnIdleTime = parsed.MaxConnIdleTime
	}
	if parsed.ServerSelectionTimeout != 0 {
		dst.ServerSelectionTimeout = parsed.ServerSelectionTimeout
	}
	if parsed.MaxPoolSize != 0 {
		dst.MaxPoolSize = parsed.MaxPoolSize
	}
	if parsed.MinPoolSize != 0 {
		dst.MinPoolSize = parsed.MinPoolSize
	}
	dst.Direct = dst.Direct || parsed.Direct
	if parsed.retryWritesSet {
		dst.RetryWrites = parsed.RetryWrites
	}
	if parsed.retryReadsSet {
		dst.RetryReads = parsed.RetryReads
	}
}
