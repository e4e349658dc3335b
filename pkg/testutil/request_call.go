package testutil

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestCall records a request served by the mock Ring API
type RequestCall struct {
	Timestamp time.Time
	Method    string
	Host      string
	Path      string
	Query     url.Values
	Header    http.Header
	Body      []byte
	Status    int
}

// FilterCalls returns the calls matching method and path prefix
func FilterCalls(calls []RequestCall, method, pathPrefix string) []RequestCall {
	var filtered []RequestCall
	for _, call := range calls {
		if call.Method == method && strings.HasPrefix(call.Path, pathPrefix) {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// FindCall returns the most recent call with the exact method and path
func FindCall(calls []RequestCall, method, path string) *RequestCall {
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Method == method && call.Path == path {
			return &call
		}
	}
	return nil
}
