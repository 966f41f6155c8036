package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindTimeout
	KindHTTP
	KindDecode
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Sentinels matched by RequestError through errors.Is
var (
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("request timed out")
	ErrHTTP    = errors.New("http error")
	ErrDecode  = errors.New("invalid response body")
	ErrEncode  = errors.New("invalid request body")
)

// GenericMessage is used when a failed response carries no message
const GenericMessage = "request failed"

// RequestError is the single error shape returned by the client
type RequestError struct {
	Kind       Kind
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *RequestError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrTimeout) and friends match on Kind
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrEncode:
		return e.Kind == KindEncode
	}
	return false
}

// IsTimeout reports whether err is a request timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnauthorized reports whether the backend rejected the credentials
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// StatusCode returns the HTTP status of a failed request, or 0
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// Message returns the user-facing text of err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re *RequestError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}
