// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// ErrMalformedReply is returned when a backend answers 2xx with an unusable body.
var ErrMalformedReply = errors.New("backend: malformed reply")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code       int
	Msg        string
	RetryAfter *time.Duration
}

func (e StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("status %d", e.Code)
}

// StatusCode returns the HTTP status code.
func (e StatusError) StatusCode() int { return e.Code }

func newStatusError(resp *http.Response, body []byte) StatusError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return StatusError{
		Code:       resp.StatusCode,
		Msg:        msg,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// StatusCodeOf extracts an upstream HTTP status from any adapter error, or 0.
func StatusCodeOf(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

// RetryAfterOf returns the server-advised delay carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var se StatusError
	if errors.As(err, &se) && se.RetryAfter != nil {
		return *se.RetryAfter, true
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) && ae.Response != nil {
		if d := parseRetryAfter(ae.Response.Header.Get("Retry-After"), time.Now()); d != nil {
			return *d, true
		}
	}
	return 0, false
}

// IsRetryable reports whether err is transient: timeouts, network failures,
// 408, 429 and 5xx responses. Cancellation of the caller's context is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrMalformedReply) {
		return false
	}
	if code := StatusCodeOf(err); code != 0 {
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
