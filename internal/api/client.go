package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

// MaxRetryDelayMs caps the backoff delay between retries.
const MaxRetryDelayMs = 30000

// Client wraps the Drive API with retry logic and request shaping
type Client struct {
	service    *drive.Service
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Client{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		logger:     logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(profile string, rootID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:         profile,
		RootID:          rootID,
		InvolvedItemIDs: []string{},
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}

// WithItemIDs adds item IDs to the request context
func (c *Client) WithItemIDs(ctx *types.RequestContext, itemIDs ...string) *types.RequestContext {
	ctx.InvolvedItemIDs = append(ctx.InvolvedItemIDs, itemIDs...)
	return ctx
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("profile", reqCtx.Profile),
		logging.F("rootId", reqCtx.RootID),
	)

	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(lastErr) {
			logger.Error("API operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, ClassifyError(lastErr, reqCtx)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, utils.WrapAppError(utils.NewSyncError(utils.ErrCodeCancelled, "operation cancelled").Build(), ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, ClassifyError(lastErr, reqCtx)
}

// isRetryable checks if an error is retryable
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	// Honor a Retry-After header when the server sent one
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if retryAfter := apiErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > MaxRetryDelayMs*time.Millisecond {
					return MaxRetryDelayMs * time.Millisecond
				}
				return delay
			}
		}
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > MaxRetryDelayMs*time.Millisecond {
		delay = MaxRetryDelayMs * time.Millisecond
	}

	// Add jitter (±25% of delay)
	jitterRange := delay / 4
	jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
	delay = delay + jitter
	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// ClassifyError converts a raw API error into a stable-coded AppError.
func ClassifyError(err error, reqCtx *types.RequestContext) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}

	code := utils.ErrCodeNetworkError
	status := 0

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		status = apiErr.Code
		switch {
		case apiErr.Code == http.StatusNotFound:
			code = utils.ErrCodeItemNotFound
		case apiErr.Code == http.StatusForbidden:
			code = utils.ErrCodePermissionDenied
		case apiErr.Code == http.StatusUnauthorized:
			code = utils.ErrCodeAuthRequired
		case apiErr.Code == http.StatusTooManyRequests:
			code = utils.ErrCodeRateLimited
		case apiErr.Code >= 500:
			code = utils.ErrCodeSourceUnavailable
		default:
			code = utils.ErrCodeInternalError
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = utils.ErrCodeCancelled
	}

	builder := utils.NewSyncError(code, err.Error()).
		WithHTTPStatus(status).
		WithRetryable(isRetryable(err))
	if reqCtx != nil {
		builder = builder.
			WithContext("requestType", string(reqCtx.RequestType)).
			WithContext("traceId", reqCtx.TraceID)
		if len(reqCtx.InvolvedItemIDs) > 0 {
			builder = builder.WithContext("itemIds", reqCtx.InvolvedItemIDs)
		}
	}
	return utils.WrapAppError(builder.Build(), err)
}

// Service returns the underlying Drive service
func (c *Client) Service() *drive.Service {
	return c.service
}

// Logger returns the client's logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// MaxRetries returns the configured retry limit
func (c *Client) MaxRetries() int {
	return c.maxRetries
}
