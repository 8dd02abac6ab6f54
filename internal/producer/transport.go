package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	apperrors "github.com/FadhilAkbarC/roblox-sync-backend/internal/errors"
)

const requestTimeout = 10 * time.Second

// PermanentError marks a rejection that retrying cannot fix (the relay
// classified the payload as invalid).
type PermanentError struct {
	Code    apperrors.Code
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("sync rejected: %s (%s)", e.Message, e.Code)
}

// Transport posts sync payloads to the relay. Each Send makes up to
// maxAttempts tries with a fixed delay between them; a success resets the
// consecutive-failure count, exhausting the attempts surfaces an error so
// the loop can fail-stop.
type Transport struct {
	url         string
	client      *http.Client
	clock       clockwork.Clock
	maxAttempts int
	delay       time.Duration
	failures    int

	// OnRetry, when set, observes each failed attempt before the delay.
	OnRetry func(attempt int, err error)
}

func NewTransport(relayURL string, maxAttempts int, delay time.Duration, clock clockwork.Clock) *Transport {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Transport{
		url:         relayURL + "/api/sync",
		client:      &http.Client{Timeout: requestTimeout},
		clock:       clock,
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// Failures returns the consecutive failed attempts since the last success.
func (t *Transport) Failures() int {
	return t.failures
}

// Send posts the payload, retrying transient failures. Validation
// rejections are permanent and returned immediately.
func (t *Transport) Send(req *domain.SyncRequest) (*domain.SyncResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal sync payload: %w", err)
	}

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		resp, err := t.post(body)
		if err == nil {
			t.failures = 0
			return resp, nil
		}

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			t.failures = 0
			return nil, permanent
		}

		t.failures++
		if attempt == t.maxAttempts {
			return nil, fmt.Errorf("sync failed after %d attempts: %w", t.maxAttempts, err)
		}

		if t.OnRetry != nil {
			t.OnRetry(attempt, err)
		}
		slog.Warn("Sync attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", t.maxAttempts,
			"delay", t.delay,
			"error", err,
		)
		<-t.clock.After(t.delay)
	}

	panic("unreachable: maxAttempts must be >= 1")
}

func (t *Transport) post(body []byte) (*domain.SyncResponse, error) {
	// The per-request timeout is deliberately independent of the loop's
	// lifecycle: a stop request takes effect between cycles, never by
	// interrupting an in-flight post.
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode == http.StatusBadRequest {
		var rejection apperrors.Response
		if err := json.Unmarshal(data, &rejection); err != nil {
			return nil, &PermanentError{Code: apperrors.CodeInvalidPayload, Message: string(data)}
		}
		return nil, &PermanentError{Code: rejection.Code, Message: rejection.Error}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d", httpResp.StatusCode)
	}

	var resp domain.SyncResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return &resp, nil
}
