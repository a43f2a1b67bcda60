package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookRecord struct {
	bun.BaseModel `bun:"table:featurehooks_webhooks,alias:fw"`

	ID           string            `bun:"id,pk"`
	TenantID     string            `bun:"tenant_id,notnull"`
	Name         string            `bun:"name,notnull"`
	Description  string            `bun:"description,notnull"`
	URL          string            `bun:"url,notnull"`
	Headers      map[string]string `bun:"headers,type:jsonb,notnull"`
	Features     []string          `bun:"features,type:jsonb,notnull"`
	Projects     []string          `bun:"projects,type:jsonb,notnull"`
	EvalContext  string            `bun:"eval_context,notnull"`
	EvalUser     string            `bun:"eval_user,notnull"`
	BodyTemplate string            `bun:"body_template,notnull"`
	Enabled      bool              `bun:"enabled,notnull"`
	Secret       string            `bun:"secret,notnull"`
	Rights       map[string]string `bun:"rights,type:jsonb,notnull"`
	CreatedAt    time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:featurehooks_deliveries,alias:fd"`

	ID             string     `bun:"id,pk"`
	WebhookID      string     `bun:"webhook_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	TenantID       string     `bun:"tenant_id,notnull"`
	FeatureID      string     `bun:"feature_id,notnull"`
	Payload        []byte     `bun:"payload"`
	ContentType    string     `bun:"content_type,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	NextAttemptAt  time.Time  `bun:"next_attempt_at,notnull"`
	LastError      string     `bun:"last_error,notnull"`
	LastStatusCode int        `bun:"last_status_code,notnull"`
	FailureKind    string     `bun:"failure_kind,notnull"`
	ClaimOwner     string     `bun:"claim_owner,notnull"`
	ClaimExpiresAt *time.Time `bun:"claim_expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt    *time.Time `bun:"completed_at,nullzero"`
}
