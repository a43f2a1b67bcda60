package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featurehooks/core"
)

// outboundStage names the step of an outbound call that failed. The stage
// decides the error category, which the webhook classifier reads to tell
// request defects (terminal) from receiver trouble (retried).
type outboundStage string

const (
	stageUnconfigured outboundStage = "unconfigured"
	stageInvalidURL   outboundStage = "invalid_url"
	stageBuildRequest outboundStage = "build_request"
	stageExecute      outboundStage = "execute"
	stageEngineStatus outboundStage = "engine_status"
	stageEngineDecode outboundStage = "engine_decode"
)

type stageRule struct {
	category goerrors.Category
	code     int
	textCode string
}

var stageRules = map[outboundStage]stageRule{
	stageUnconfigured: {goerrors.CategoryInternal, http.StatusInternalServerError, core.ServiceErrorInternal},
	stageInvalidURL:   {goerrors.CategoryBadInput, http.StatusBadRequest, core.ServiceErrorBadInput},
	stageBuildRequest: {goerrors.CategoryBadInput, http.StatusBadRequest, core.ServiceErrorBadInput},
	stageExecute:      {goerrors.CategoryExternal, http.StatusBadGateway, core.ServiceErrorExternalFailure},
	stageEngineStatus: {goerrors.CategoryExternal, http.StatusBadGateway, core.ServiceErrorExternalFailure},
	stageEngineDecode: {goerrors.CategoryExternal, http.StatusBadGateway, core.ServiceErrorExternalFailure},
}

// outboundError builds the go-errors envelope for a failed outbound step.
// source may be nil. Timeouts keep the external category but report 504.
func outboundError(stage outboundStage, source error, message string, metadata map[string]any) error {
	rule, ok := stageRules[stage]
	if !ok {
		rule = stageRules[stageUnconfigured]
	}
	code := rule.code
	fields := map[string]any{"stage": string(stage)}
	for key, value := range metadata {
		fields[key] = value
	}
	if stage == stageExecute && errors.Is(source, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
		fields["timeout"] = true
	}

	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, rule.category)
	} else {
		err = goerrors.Wrap(source, rule.category, message)
	}
	return err.
		WithCode(code).
		WithTextCode(rule.textCode).
		WithMetadata(fields)
}

// redactURL drops credentials and the query string, which commonly carry
// receiver tokens, before a webhook URL reaches logs or the ledger.
func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		if head, _, found := strings.Cut(trimmed, "?"); found {
			return head + "?redacted"
		}
		return trimmed
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "redacted"
	}
	parsed.Fragment = ""
	return parsed.String()
}
