// Package platform is an authenticated client for the hosting platform's
// GraphQL-like API: service/deployment/log/metric/variable queries and
// restart/redeploy/stop/cancel/rollback/scale mutations.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by every method when no bearer token was
// supplied at construction, without performing any network I/O.
var ErrNotConfigured = errors.New("platform client not configured")

// ApiError wraps the "errors" array returned alongside a GraphQL response.
type ApiError struct {
	Messages []string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("platform api error: %v", e.Messages)
}

// TransportError wraps a network-level failure (exhausted retries, context
// cancellation, non-JSON body, etc).
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("platform transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ErrNoMatchingInstance and ErrNoDeployment are the two distinct failure
// kinds latestDeploymentID can surface, per the design's "distinct error
// kinds" requirement.
var (
	ErrNoMatchingInstance = errors.New("no service instance matched the requested environment")
	ErrNoDeployment       = errors.New("matching instance has no deployment yet")
)

// Client is the bearer-token-authenticated platform API client.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	token             string
	limiter           *rate.Limiter
	retryBaseInterval time.Duration
}

// NewClient constructs a Client. An empty token is valid — every method
// then fails fast with ErrNotConfigured instead of attempting a request.
// perSecond/perHour configure the shared token-bucket rate limit; pass
// 0 for both to disable limiting (used by tests).
func NewClient(baseURL, token string, perSecond, perHour int) *Client {
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = newLimiter(perSecond, perHour)
	}
	return &Client{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		baseURL:           baseURL,
		token:             token,
		limiter:           limiter,
		retryBaseInterval: 1 * time.Second,
	}
}

// NewClientWithHTTPClient allows tests to inject a client pointed at a mock
// server, with no rate limiting applied and a millisecond-scale retry
// backoff so retry-path tests run fast.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) *Client {
	return &Client{
		httpClient:        httpClient,
		baseURL:           baseURL,
		token:             token,
		retryBaseInterval: 1 * time.Millisecond,
	}
}

// Configured reports whether a bearer token was supplied.
func (c *Client) Configured() bool {
	return c.token != ""
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// rateLimitedError marks a 429 response, tracked against its own retry
// budget separate from transport/5xx failures.
type rateLimitedError struct{ cause error }

func (e *rateLimitedError) Error() string { return e.cause.Error() }

const maxRetries = 3

// execute performs one GraphQL request with retry/backoff, per the design:
// transient failures (network, 5xx) retry up to 3 times with exponential
// backoff base·2^(n-1), base=1s; 429 responses are retried against a
// *separate* 3-try budget with the same backoff. Other 4xx are never
// retried.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return &TransportError{Cause: err}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBaseInterval
	policy.Multiplier = 2.0
	policy.MaxInterval = 8 * c.retryBaseInterval
	policy.RandomizationFactor = 0

	var transportAttempts, rateLimitAttempts int
	var result *graphqlResponse
	for {
		if err := c.waitForBudget(ctx); err != nil {
			return &TransportError{Cause: err}
		}

		result, err = c.doOnce(ctx, body)
		if err == nil {
			break
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}

		var rateLimited *rateLimitedError
		if errors.As(err, &rateLimited) {
			rateLimitAttempts++
			if rateLimitAttempts >= maxRetries {
				return &TransportError{Cause: err}
			}
		} else {
			transportAttempts++
			if transportAttempts >= maxRetries {
				return &TransportError{Cause: err}
			}
		}

		wait := policy.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &TransportError{Cause: ctx.Err()}
		case <-timer.C:
		}
	}

	if len(result.Errors) > 0 {
		messages := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			messages[i] = e.Message
		}
		return &ApiError{Messages: messages}
	}

	if out != nil && result.Data != nil {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return &TransportError{Cause: err}
		}
	}
	return nil
}

// doOnce issues a single HTTP round trip, classifying the result so the
// retry loop above knows whether to give up immediately (a Permanent
// error), track it against the 429 budget, or track it against the
// transport/5xx budget.
func (c *Client) doOnce(ctx context.Context, body []byte) (*graphqlResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network error: retryable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitedError{cause: fmt.Errorf("platform api rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("platform api returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("platform api returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding platform api response: %w", err))
	}
	return &parsed, nil
}
