package azure

import (
	"context"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

const (
	defaultRetryDelay       = 5 * time.Second
	defaultMaxRetryDelay    = time.Minute
	defaultMaxRetryDuration = 5 * time.Minute
)

// RetryConfig bounds the backoff applied to throttled or failing ARM calls.
type RetryConfig struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxDuration time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Delay <= 0 {
		c.Delay = defaultRetryDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxRetryDelay
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultMaxRetryDuration
	}
	return c
}

// apiCaller wraps ARM calls, retrying with exponential backoff while the
// response is 429 Too Many Requests or a 5xx server error.
type apiCaller struct {
	config RetryConfig
	clock  retry.Clock
}

func (c apiCaller) call(ctx context.Context, what string, f func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: f,
		IsFatalError: func(err error) bool {
			return !isRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("%s: attempt %d: %v", what, attempt, err)
		},
		Attempts:    -1,
		Delay:       c.config.Delay,
		MaxDelay:    c.config.MaxDelay,
		MaxDuration: c.config.MaxDuration,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if retry.IsDurationExceeded(err) || retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		logger.Warningf("%s: giving up: %v", what, err)
		err = retry.LastError(err)
	}
	return classify(err, what)
}

func isRetryable(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError
}

// classify maps ARM status codes onto juju error types so callers can test
// them with errors.Is.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return errors.NewNotFound(err, what)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errors.NewForbidden(err, what)
		case http.StatusBadRequest:
			return errors.NewNotValid(err, what)
		}
	}
	return errors.Annotate(err, what)
}
