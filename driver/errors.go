// Package driver implements the retry/resume engine from §4.9: error
// classification, a command Execute entry point that retries reads once and
// replays writes with an identical txnNumber, and a resumable change-stream
// Cursor.
package driver

import (
	"fmt"

	"github.com/sealdb/driver/bsoncore"
)

// CommandError is a server-reported command failure ({ok: 0, errmsg, code,
// codeName, errorLabels}), grounded on the teacher's driverx.Error /
// extractError shape.
type CommandError struct {
	Code    int32
	Name    string
	Message string
	Labels  []string
}

func (e CommandError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("(%s) %s", e.Name, e.Message)
	}
	return e.Message
}

// HasLabel reports whether label is present in the command's errorLabels.
func (e CommandError) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// WriteError is one entry of a writeErrors array in a batch write reply.
type WriteError struct {
	Index   int64
	Code    int64
	Message string
}

// WriteConcernError is the writeConcernError sub-document of a write reply.
type WriteConcernError struct {
	Code    int64
	Message string
	Details bsoncore.Document
}

// WriteCommandError bundles the per-document write errors and/or write
// concern error a batch write command can report alongside ok:1.
type WriteCommandError struct {
	WriteErrors       []WriteError
	WriteConcernError *WriteConcernError
}

func (e WriteCommandError) Error() string {
	switch {
	case len(e.WriteErrors) > 0 && e.WriteConcernError != nil:
		return fmt.Sprintf("%d write error(s), plus a write concern error: %s", len(e.WriteErrors), e.WriteConcernError.Message)
	case len(e.WriteErrors) > 0:
		return fmt.Sprintf("%d write error(s): %s", len(e.WriteErrors), e.WriteErrors[0].Message)
	case e.WriteConcernError != nil:
		return "write concern error: " + e.WriteConcernError.Message
	default:
		return "write command error"
	}
}

// extractError inspects a decoded command reply and, if it represents a
// failure (ok != 1, or a populated writeErrors/writeConcernError), returns
// the appropriate error value. Returns nil for a clean success.
//
// Grounded on the teacher's x/mongo/driverx/driver.go extractError: walk
// every top-level element once, classifying by key name.
func extractError(reply bsoncore.Document) error {
	elems, err := reply.Elements()
	if err != nil {
		return fmt.Errorf("driver: malformed command reply: %w", err)
	}

	var ok bool
	var errmsg, codeName string
	var code int32
	var labels []string
	var wcErr WriteCommandError

	for _, elem := range elems {
		switch elem.Key() {
		case "ok":
			if v, found := elem.Value().AsInt64(); found && v == 1 {
				ok = true
			}
		case "errmsg":
			errmsg, _ = elem.Value().StringValueOK()
		case "codeName":
			codeName, _ = elem.Value().StringValueOK()
		case "code":
			if c, found := elem.Value().Int32OK(); found {
				code = c
			}
		case "errorLabels":
			if arr, found := elem.Value().ArrayOK(); found {
				values, err := arr.Values()
				if err == nil {
					for _, v := range values {
						if s, found := v.StringValueOK(); found {
							labels = append(labels, s)
						}
					}
				}
			}
		case "writeErrors":
			if arr, found := elem.Value().ArrayOK(); found {
				values, err := arr.Values()
				if err == nil {
					for _, v := range values {
						doc, found := v.DocumentOK()
						if !found {
							continue
						}
						var we WriteError
						if idx, found := doc.Lookup("index"); found {
							we.Index, _ = idx.AsInt64()
						}
						if c, found := doc.Lookup("code"); found {
							we.Code, _ = c.AsInt64()
						}
						if msg, found := doc.Lookup("errmsg"); found {
							we.Message, _ = msg.StringValueOK()
						}
						wcErr.WriteErrors = append(wcErr.WriteErrors, we)
					}
				}
			}
		case "writeConcernError":
			if doc, found := elem.Value().DocumentOK(); found {
				wce := &WriteConcernError{}
				if c, found := doc.Lookup("code"); found {
					wce.Code, _ = c.AsInt64()
				}
				if msg, found := doc.Lookup("errmsg"); found {
					wce.Message, _ = msg.StringValueOK()
				}
				if info, found := doc.Lookup("errInfo"); found {
					if d, found := info.DocumentOK(); found {
						wce.Details = append(bsoncore.Document(nil), d...)
					}
				}
				wcErr.WriteConcernError = wce
			}
		}
	}

	if !ok {
		if errmsg == "" {
			errmsg = "command failed"
		}
		return CommandError{Code: code, Name: codeName, Message: errmsg, Labels: labels}
	}

	if len(wcErr.WriteErrors) > 0 || wcErr.WriteConcernError != nil {
		return wcErr
	}

	return nil
}
