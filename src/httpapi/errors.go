package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"creek/src/broker"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorCode struct {
	code   string
	status int
	err    error
}

var errorCodes = []errorCode{
	{"no_such_topic", http.StatusNotFound, broker.ErrNoSuchTopic},
	{"topic_exists", http.StatusConflict, broker.ErrTopicExists},
	{"shard_out_of_range", http.StatusBadRequest, broker.ErrShardOutOfRange},
	{"shard_not_assigned", http.StatusConflict, broker.ErrShardNotAssigned},
	{"commit_beyond_lease", http.StatusConflict, broker.ErrCommitBeyondLease},
	{"subscription_closed", http.StatusGone, broker.ErrSubscriptionClosed},
	{"invalid_argument", http.StatusBadRequest, broker.ErrInvalidArgument},
	{"unsupported", http.StatusNotImplemented, errors.ErrUnsupported},
}

// ErrUnavailable is returned by the client for transport and server failures.
var ErrUnavailable = errors.New("broker unavailable")

func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

// decodeError turns a wire error back into one that matches the broker's
// sentinel errors.
func decodeError(status int, body ErrorResponse) error {
	for _, c := range errorCodes {
		if c.code == body.Code {
			return &remoteError{msg: body.Error, err: c.err}
		}
	}
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	return &remoteError{msg: fmt.Sprintf("status %d: %s", status, body.Error), err: ErrUnavailable}
}

// remoteError carries the server's message and unwraps to the matching sentinel.
type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.err }
