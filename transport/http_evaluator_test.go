package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-featurehooks/core"
)

func TestHTTPActivationEvaluator_EvaluatesForContextAndUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/v2/features/F1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("context") != "prod/eu" || r.URL.Query().Get("user") != "u-42" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Izanami-Client-Id") != "client" {
			t.Errorf("expected credential header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"enabled":false,"conditions":{"rule":"user_list"}}`))
	}))
	defer server.Close()

	evaluator := NewHTTPActivationEvaluator(server.URL+"/", NewHTTPSender(server.Client()))
	evaluator.Headers["Izanami-Client-Id"] = "client"

	activation, err := evaluator.Evaluate(context.Background(), core.EvaluationRequest{
		FeatureID: "F1",
		Context:   "prod/eu",
		User:      "u-42",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !activation.Active || activation.Enabled {
		t.Fatalf("unexpected activation %+v", activation)
	}
	if activation.Conditions["rule"] != "user_list" {
		t.Fatalf("expected conditions to be decoded, got %+v", activation.Conditions)
	}
}

func TestHTTPActivationEvaluator_NonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	evaluator := NewHTTPActivationEvaluator(server.URL, NewHTTPSender(server.Client()))
	_, err := evaluator.Evaluate(context.Background(), core.EvaluationRequest{FeatureID: "F1"})
	if !core.HasTextCode(err, core.ServiceErrorExternalFailure) {
		t.Fatalf("expected external failure, got %v", err)
	}
}

func TestHTTPActivationEvaluator_RequiresBaseURL(t *testing.T) {
	evaluator := NewHTTPActivationEvaluator("", nil)
	if _, err := evaluator.Evaluate(context.Background(), core.EvaluationRequest{FeatureID: "F1"}); err == nil {
		t.Fatalf("expected configuration error")
	}
}
