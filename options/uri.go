package options

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// recognizedQueryOptions is the set of mongodb:// query parameters this
// parser understands. Anything else is reported back as a warning rather
// than failing the parse outright, matching the teacher's permissive
// posture toward options it doesn't recognize.
var recognizedQueryOptions = map[string]bool{
	"appname": true, "replicaset": true, "connecttimeoutms": true,
	"heartbeatfrequencyms": true, "localthresholdms": true,
	"maxidletimems": true, "serverselectiontimeoutms": true,
	"maxpoolsize": true, "minpoolsize": true, "directconnection": true,
	"retrywrites": true, "retryreads": true, "compressors": true,
	"authsource": true, "authmechanism": true, "authmechanismproperties": true,
	"ssl": true, "tls": true,
}

// parseURI parses a mongodb:// connection string into a ClientOptions. It
// does not resolve mongodb+srv:// DNS records; that scheme is accepted and
// its single host is taken as a literal seed, since SRV/TXT resolution
// needs a live resolver this package has no business owning.
func parseURI(uri string) (*ClientOptions, []string, error) {
	_, rest, ok := splitScheme(uri)
	if !ok {
		return nil, nil, fmt.Errorf(`scheme must be "mongodb" or "mongodb+srv"`)
	}

	// rest looks like [user:pass@]host1[:port][,host2...][/db][?opts]
	var userinfo, hostsAndPath string
	if at := strings.LastIndex(rest, "@"); at != -1 {
		userinfo, hostsAndPath = rest[:at], rest[at+1:]
	} else {
		hostsAndPath = rest
	}

	hostsPart := hostsAndPath
	var dbAndQuery string
	if slash := strings.Index(hostsAndPath, "/"); slash != -1 {
		hostsPart, dbAndQuery = hostsAndPath[:slash], hostsAndPath[slash+1:]
	}

	hosts := strings.Split(hostsPart, ",")
	for i, h := range hosts {
		hosts[i] = strings.TrimSpace(h)
		if hosts[i] == "" {
			return nil, nil, fmt.Errorf("options: empty host in host list %q", hostsPart)
		}
	}

	database := dbAndQuery
	var rawQuery string
	if q := strings.Index(dbAndQuery, "?"); q != -1 {
		database, rawQuery = dbAndQuery[:q], dbAndQuery[q+1:]
	}

	opts := &ClientOptions{Hosts: hosts, Database: database}
	var warnings []string
	var explicit explicitBools

	if userinfo != "" {
		cred, err := parseUserinfo(userinfo)
		if err != nil {
			return nil, nil, err
		}
		opts.Auth = cred
	}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, nil, fmt.Errorf("options: malformed query string: %w", err)
		}
		w, err := applyQuery(opts, &explicit, values)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
	}

	opts.retryWritesSet, opts.retryReadsSet = explicit.retryWrites, explicit.retryReads
	return opts, warnings, nil
}

// explicitBools tracks which boolean query options a URI actually set, so
// mergeParsed can tell "the URI said false" apart from "the URI said
// nothing" and leave the builder's own default (e.g. retryWrites=true)
// alone in the latter case.
type explicitBools struct {
	retryWrites bool
	retryReads  bool
}

func splitScheme(uri string) (scheme, rest string, ok bool) {
	const mongodbPrefix = "mongodb://"
	const srvPrefix = "mongodb+srv://"
	switch {
	case strings.HasPrefix(uri, mongodbPrefix):
		return "mongodb", uri[len(mongodbPrefix):], true
	case strings.HasPrefix(uri, srvPrefix):
		return "mongodb+srv", uri[len(srvPrefix):], true
	default:
		return "", "", false
	}
}

func parseUserinfo(userinfo string) (*Credential, error) {
	parts := strings.SplitN(userinfo, ":", 2)
	user, err := url.QueryUnescape(parts[0])
	if err != nil {
		return nil, fmt.Errorf("options: invalid username: %w", err)
	}
	cred := &Credential{Username: user}
	if len(parts) == 2 {
		pass, err := url.QueryUnescape(parts[1])
		if err != nil {
			return nil, fmt.Errorf("options: invalid password: %w", err)
		}
		cred.Password = pass
		cred.PasswordSet = true
	}
	return cred, nil
}

func applyQuery(opts *ClientOptions, explicit *explicitBools, values url.Values) ([]string, error) {
	var warnings []string
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		val := vals[len(vals)-1]
		lower := strings.ToLower(key)
		if !recognizedQueryOptions[lower] {
			warnings = append(warnings, fmt.Sprintf("options: ignoring unrecognized query option %q", key))
			continue
		}

		var err error
		switch lower {
		case "appname":
			opts.AppName = val
		case "replicaset":
			opts.ReplicaSet = val
		case "connecttimeoutms":
			opts.ConnectTimeout, err = parseMillis(val)
		case "heartbeatfrequencyms":
			opts.HeartbeatInterval, err = parseMillis(val)
		case "localthresholdms":
			opts.LocalThreshold, err = parseMillis(val)
		case "maxidletimems":
			opts.MaxConnIdleTime, err = parseMillis(val)
		case "serverselectiontimeoutms":
			opts.ServerSelectionTimeout, err = parseMillis(val)
		case "maxpoolsize":
			opts.MaxPoolSize, err = parseUint(val)
		case "minpoolsize":
			opts.MinPoolSize, err = parseUint(val)
		case "directconnection":
			opts.Direct, err = strconv.ParseBool(val)
		case "retrywrites":
			opts.RetryWrites, err = strconv.ParseBool(val)
			explicit.retryWrites = true
		case "retryreads":
			opts.RetryReads, err = strconv.ParseBool(val)
			explicit.retryReads = true
		case "compressors":
			opts.Compressors = strings.Split(val, ",")
		case "authsource":
			ensureAuth(opts).AuthSource = val
		case "authmechanism":
			ensureAuth(opts).AuthMechanism = val
		case "authmechanismproperties":
			ensureAuth(opts).AuthMechanismProps = parseAuthProps(val)
		case "ssl", "tls":
			// Presence is noted by the caller via the raw query if they
			// need it; this package never constructs a *tls.Config (that
			// capability is assumed to come from the caller per SetTLSConfig).
		}
		if err != nil {
			return nil, fmt.Errorf("options: invalid value %q for %s: %w", val, key, err)
		}
	}
	return warnings, nil
}

func ensureAuth(opts *ClientOptions) *Credential {
	if opts.Auth == nil {
		opts.Auth = &Credential{}
	}
	return opts.Auth
}

func parseAuthProps(val string) map[string]string {
	props := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		props[kv[0]] = kv[1]
	}
	return props
}

func parseMillis(val string) (time.Duration, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func parseUint(val string) (uint64, error) {
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}
