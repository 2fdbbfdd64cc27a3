package errors

import (
	"context"
	stdErrors "errors"
	"net"
	"net/http"
	"regexp"
)

// Kind classifies a failure for retry purposes.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
)

// Failure is the normalized view of any error returned by a remote store call.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
	Type    string
	Code    Code
}

// Transient reports whether the failure may succeed when replayed.
func (f Failure) Transient() bool {
	return f.Kind == KindTransient
}

var retryableStatuses = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooEarly:            {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

var transientMessage = regexp.MustCompile(`(?i)(rate.?limit|too many requests|timed? ?out|timeout|network|connection (refused|reset)|econnreset|socket hang up|temporar(y|ily) unavailable|fetch failed)`)

// IsRetryableStatus reports whether a remote status code is worth replaying.
func IsRetryableStatus(status int) bool {
	_, ok := retryableStatuses[status]
	return ok
}

// FromStatus maps a remote HTTP status into a typed error carrying the status.
func FromStatus(status int, kind, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return New(codeForStatus(status), message).WithStatus(status).WithType(kind)
}

func codeForStatus(status int) Code {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests, status == http.StatusTooEarly:
		return CodeRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeDependency
	case status >= 400:
		return CodeValidation
	}
	return CodeInternal
}

// Normalize classifies err exactly once into a Failure. A nil error yields the zero value.
func Normalize(err error) Failure {
	if err == nil {
		return Failure{}
	}

	f := Failure{Kind: KindPermanent, Message: err.Error()}

	if typed := As(err); typed != nil {
		f.Code = typed.Code()
		f.Status = typed.Status()
		f.Type = typed.Type()
		if typed.Message() != "" {
			f.Message = typed.Message()
		}
		switch {
		case f.Status > 0:
			if IsRetryableStatus(f.Status) {
				f.Kind = KindTransient
			}
			return f
		case typed.Code() == CodeRateLimit, typed.Code() == CodeTimeout, typed.Code() == CodeDependency:
			f.Kind = KindTransient
			return f
		case typed.Code() == CodeInternal:
			// untyped causes wrapped as internal are judged on their own merits
		default:
			return f
		}
	}

	if stdErrors.Is(err, context.Canceled) {
		return f
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		f.Kind = KindTransient
		return f
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		f.Kind = KindTransient
		return f
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		if transientMessage.MatchString(e.Error()) {
			f.Kind = KindTransient
			break
		}
	}
	return f
}
