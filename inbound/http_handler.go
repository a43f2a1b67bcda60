package inbound

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-featurehooks/core"
	"github.com/goliatone/go-featurehooks/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultMaxEventBytes = 1 << 20

// HTTPHandler accepts POSTed change events. When Secret is set the body must
// carry a valid signature in the signer's header.
type HTTPHandler struct {
	Ingestor     core.Ingestor
	Secret       string
	Signer       webhooks.HMACSigner
	MaxBodyBytes int64
	Logger       core.Logger
}

func NewHTTPHandler(ingestor core.Ingestor, secret string) *HTTPHandler {
	return &HTTPHandler{
		Ingestor:     ingestor,
		Secret:       strings.TrimSpace(secret),
		Signer:       webhooks.DefaultSigner(),
		MaxBodyBytes: defaultMaxEventBytes,
		Logger:       glog.Nop(),
	}
}

type acceptedResponse struct {
	EventID    string   `json:"event_id"`
	Matched    []string `json:"matched"`
	Inserted   []string `json:"inserted"`
	Duplicates []string `json:"duplicates"`
	Failed     []string `json:"failed,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if h == nil || h.Ingestor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ingestor is not configured"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxEventBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		h.fail(w, r, inboundBadInput("inbound: read request body", nil))
		return
	}
	if int64(len(body)) > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "event body too large"})
		return
	}

	if h.Secret != "" {
		if err := h.Signer.Verify(h.Secret, r.Header.Get(h.Signer.HeaderName()), body); err != nil {
			h.fail(w, r, inboundUnauthorized(err))
			return
		}
	}

	event, err := DecodeChangeEvent(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.Ingestor.HandleChangeEvent(r.Context(), event)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		EventID:    result.EventID,
		Matched:    nonNil(result.Matched),
		Inserted:   nonNil(result.Inserted),
		Duplicates: nonNil(result.Duplicates),
		Failed:     result.Failed,
	})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		core.LogWithLevel(r.Context(), h.Logger, "error", "change event ingest failed", map[string]any{
			"error":  err.Error(),
			"status": status,
		})
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), TextCode: textCodeOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
