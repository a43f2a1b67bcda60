package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ChangeKind string

const (
	ChangeKindCreated           ChangeKind = "created"
	ChangeKindDeleted           ChangeKind = "deleted"
	ChangeKindEnablingChanged   ChangeKind = "enabling_changed"
	ChangeKindConditionsChanged ChangeKind = "conditions_changed"
	ChangeKindOverloadChanged   ChangeKind = "overload_changed"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeKindCreated, ChangeKindDeleted, ChangeKindEnablingChanged,
		ChangeKindConditionsChanged, ChangeKindOverloadChanged:
		return true
	default:
		return false
	}
}

type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusInFlight       DeliveryStatus = "in_flight"
	DeliveryStatusSucceeded      DeliveryStatus = "succeeded"
	DeliveryStatusFailedTerminal DeliveryStatus = "failed_terminal"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSucceeded || s == DeliveryStatusFailedTerminal
}

type FailureKind string

const (
	FailureKindNone               FailureKind = ""
	FailureKindRender             FailureKind = "render"
	FailureKindDelivery           FailureKind = "delivery"
	FailureKindWebhookUnavailable FailureKind = "webhook_unavailable"
)

type DeliveryOutcome string

const (
	DeliveryOutcomeSuccess   DeliveryOutcome = "success"
	DeliveryOutcomeRetryable DeliveryOutcome = "retryable"
	DeliveryOutcomeTerminal  DeliveryOutcome = "terminal"
)

type RightLevel string

const (
	RightRead  RightLevel = "read"
	RightWrite RightLevel = "write"
	RightAdmin RightLevel = "admin"
)

type WebhookAction string

const (
	WebhookActionView   WebhookAction = "view"
	WebhookActionUpdate WebhookAction = "update"
	WebhookActionDelete WebhookAction = "delete"
)

func (r RightLevel) rank() int {
	switch r {
	case RightRead:
		return 1
	case RightWrite:
		return 2
	case RightAdmin:
		return 3
	default:
		return 0
	}
}

// Allows reports whether the right level permits the action.
func (r RightLevel) Allows(action WebhookAction) bool {
	switch action {
	case WebhookActionView:
		return r.rank() >= RightRead.rank()
	case WebhookActionUpdate:
		return r.rank() >= RightWrite.rank()
	case WebhookActionDelete:
		return r.rank() >= RightAdmin.rank()
	default:
		return false
	}
}

// Webhook is a subscriber registration. The delivery pipeline only reads it.
type Webhook struct {
	ID           string
	TenantID     string
	URL          string
	Name         string
	Description  string
	Headers      map[string]string
	Features     []string
	Projects     []string
	Context      string
	User         string
	BodyTemplate string
	Enabled      bool
	Secret       string
	Rights       map[string]RightLevel
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NeedsReevaluation reports whether activation must be recomputed for the
// hook's own context or user instead of reusing the event payload.
func (w Webhook) NeedsReevaluation() bool {
	return strings.TrimSpace(w.Context) != "" || strings.TrimSpace(w.User) != ""
}

func (w Webhook) RightFor(principal string) RightLevel {
	if len(w.Rights) == 0 {
		return ""
	}
	return w.Rights[strings.TrimSpace(principal)]
}

// Activation is the evaluated state of a feature.
type Activation struct {
	Enabled    bool
	Active     bool
	Conditions map[string]any
}

// ChangeEvent describes a single feature mutation. It is immutable once built.
type ChangeEvent struct {
	ID          string
	FeatureID   string
	FeatureName string
	ProjectID   string
	TenantID    string
	Kind        ChangeKind
	OccurredAt  time.Time
	Activation  *Activation
	Deleted     bool
}

// EventID returns the event identity, deriving a stable one from the event
// content when the source did not provide it.
func (e ChangeEvent) EventID() string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(e.TenantID),
		strings.TrimSpace(e.ProjectID),
		strings.TrimSpace(e.FeatureID),
		string(e.Kind),
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return "evt_" + hex.EncodeToString(sum[:16])
}

// DeliveryAttempt is a ledger row: one (webhook, event) pairing and its
// delivery progress.
type DeliveryAttempt struct {
	ID             string
	WebhookID      string
	EventID        string
	TenantID       string
	FeatureID      string
	Payload        []byte
	ContentType    string
	Status         DeliveryStatus
	Attempts       int
	NextAttemptAt  time.Time
	LastError      string
	LastStatusCode int
	FailureKind    FailureKind
	ClaimOwner     string
	ClaimExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Claimable reports whether the row may be claimed at now.
func (d DeliveryAttempt) Claimable(now time.Time) bool {
	if d.NextAttemptAt.After(now) {
		return false
	}
	switch d.Status {
	case DeliveryStatusPending:
		return true
	case DeliveryStatusInFlight:
		return d.ClaimExpiresAt != nil && !d.ClaimExpiresAt.After(now)
	default:
		return false
	}
}

var deliveryNamespace = uuid.MustParse("5b0f3c55-6a2e-4d7f-9a57-2b7b9f1c2e10")

// DeliveryID is the deterministic ledger id for a (webhook, event) pairing.
func DeliveryID(webhookID string, eventID string) string {
	key := strings.TrimSpace(webhookID) + "|" + strings.TrimSpace(eventID)
	return uuid.NewSHA1(deliveryNamespace, []byte(key)).String()
}

type RenderedPayload struct {
	Body        []byte
	ContentType string
}

type InsertDeliveryInput struct {
	WebhookID   string
	EventID     string
	TenantID    string
	FeatureID   string
	Payload     []byte
	ContentType string
	// Status defaults to pending. A failed_terminal insert records a
	// configuration problem that must never be dispatched.
	Status      DeliveryStatus
	FailureKind FailureKind
	LastError   string
	Now         time.Time
}

type ClaimRequest struct {
	InstanceID string
	Limit      int
	Lease      time.Duration
	Now        time.Time
}

type DeliveryCompletion struct {
	ID            string
	InstanceID    string
	Outcome       DeliveryOutcome
	NextAttemptAt time.Time
	StatusCode    int
	Error         string
	FailureKind   FailureKind
	Now           time.Time
}

type DeliveryFilter struct {
	WebhookID string
	EventID   string
	Statuses  []DeliveryStatus
	Limit     int
	Offset    int
}

type DeliveryPage struct {
	Items []DeliveryAttempt
	Total int
}

type DeliveryStats struct {
	WebhookID      string
	Pending        int
	InFlight       int
	Succeeded      int
	FailedTerminal int
	RenderFailures int
	LastError      string
	LastErrorAt    *time.Time
}

type IngestResult struct {
	EventID    string
	Matched    []string
	Inserted   []string
	Duplicates []string
	Failed     []string
}

type DispatchStats struct {
	Claimed   int
	Succeeded int
	Retried   int
	Failed    int
	Skipped   int
}

type UpsertWebhookInput struct {
	Principal string
	Webhook   Webhook
}

type DeleteWebhookInput struct {
	Principal string
	WebhookID string
}
