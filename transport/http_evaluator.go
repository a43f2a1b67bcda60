package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-featurehooks/core"
)

// HTTPActivationEvaluator asks the feature engine's client API for the
// activation of one feature in a given context or for a given user.
type HTTPActivationEvaluator struct {
	BaseURL string
	// Headers carry client credentials for the feature engine.
	Headers map[string]string
	Timeout time.Duration
	Sender  core.DeliverySender
}

func NewHTTPActivationEvaluator(baseURL string, sender core.DeliverySender) *HTTPActivationEvaluator {
	if sender == nil {
		sender = NewHTTPSender(nil)
	}
	return &HTTPActivationEvaluator{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Headers: map[string]string{},
		Timeout: 5 * time.Second,
		Sender:  sender,
	}
}

type activationResponse struct {
	Enabled    *bool          `json:"enabled"`
	Active     bool           `json:"active"`
	Conditions map[string]any `json:"conditions"`
}

func (e *HTTPActivationEvaluator) Evaluate(ctx context.Context, req core.EvaluationRequest) (core.Activation, error) {
	if e == nil || e.Sender == nil || e.BaseURL == "" {
		return core.Activation{}, outboundError(stageUnconfigured, nil, "transport: activation evaluator is not configured", nil)
	}
	query := url.Values{}
	if value := strings.TrimSpace(req.Context); value != "" {
		query.Set("context", value)
	}
	if value := strings.TrimSpace(req.User); value != "" {
		query.Set("user", value)
	}
	target := fmt.Sprintf("%s/api/v2/features/%s", e.BaseURL, url.PathEscape(strings.TrimSpace(req.FeatureID)))
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	headers := map[string]string{"Accept": core.ContentTypeJSON}
	for key, value := range e.Headers {
		headers[key] = value
	}
	if tenant := strings.TrimSpace(req.TenantID); tenant != "" {
		headers["X-Featurehooks-Tenant"] = tenant
	}

	res, err := e.Sender.Send(ctx, core.OutboundRequest{
		Method:  http.MethodGet,
		URL:     target,
		Headers: headers,
		Timeout: e.Timeout,
	})
	if err != nil {
		return core.Activation{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.Activation{}, outboundError(stageEngineStatus, nil,
			fmt.Sprintf("transport: feature engine returned status %d", res.StatusCode),
			map[string]any{"status_code": res.StatusCode, "feature_id": req.FeatureID},
		)
	}

	var decoded activationResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.Activation{}, outboundError(stageEngineDecode, err, "transport: decode feature engine response", map[string]any{
			"feature_id": req.FeatureID,
		})
	}
	activation := core.Activation{Active: decoded.Active, Enabled: decoded.Active, Conditions: decoded.Conditions}
	if decoded.Enabled != nil {
		activation.Enabled = *decoded.Enabled
	}
	return activation, nil
}

var _ core.ActivationEvaluator = (*HTTPActivationEvaluator)(nil)
