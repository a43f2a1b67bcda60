package webhooks

import (
	"fmt"
	"net/http"
	"slices"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featurehooks/core"
)

// Classification is the verdict on one delivery attempt.
type Classification struct {
	Outcome    core.DeliveryOutcome
	StatusCode int
	Err        error
}

// Classifier maps a transport result to an outcome. Connection failures,
// timeouts, 5xx and the configured retryable statuses are retried. A request
// the sender refused to build, and any other non-2xx answer, is final.
type Classifier struct {
	RetryableStatuses []int
}

func NewClassifier(retryable []int) Classifier {
	return Classifier{RetryableStatuses: slices.Clone(retryable)}
}

func (c Classifier) Classify(res core.OutboundResponse, sendErr error) Classification {
	if sendErr != nil {
		if isRequestDefect(sendErr) {
			return Classification{
				Outcome: core.DeliveryOutcomeTerminal,
				Err:     core.TerminalDeliveryError(sendErr, 0, "webhooks: delivery request is invalid"),
			}
		}
		return Classification{
			Outcome: core.DeliveryOutcomeRetryable,
			Err:     core.RetryableDeliveryError(sendErr, 0, "webhooks: delivery transport failed"),
		}
	}
	status := res.StatusCode
	switch {
	case status >= 200 && status < 300:
		return Classification{Outcome: core.DeliveryOutcomeSuccess, StatusCode: status}
	case status >= http.StatusInternalServerError || slices.Contains(c.RetryableStatuses, status):
		return Classification{
			Outcome:    core.DeliveryOutcomeRetryable,
			StatusCode: status,
			Err:        core.RetryableDeliveryError(nil, status, fmt.Sprintf("webhooks: receiver returned status %d", status)),
		}
	default:
		return Classification{
			Outcome:    core.DeliveryOutcomeTerminal,
			StatusCode: status,
			Err:        core.TerminalDeliveryError(nil, status, fmt.Sprintf("webhooks: receiver rejected delivery with status %d", status)),
		}
	}
}

func isRequestDefect(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryBadInput || richErr.Category == goerrors.CategoryValidation
}
