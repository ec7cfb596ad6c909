package identity

import (
	"context"
	"time"
)

// Status is the observable lifecycle state of a stored credential.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusActive     Status = "active"
	StatusPending    Status = "pending"
	StatusRefreshing Status = "refreshing"
	StatusError      Status = "error"
	StatusDisabled   Status = "disabled"
)

// QuotaState tracks quota exhaustion and the cooldown before the
// credential may be selected again.
type QuotaState struct {
	Exceeded      bool
	Reason        string
	NextRecoverAt time.Time
	BackoffLevel  int
}

// Credential is a stored, signable identity: an access key pair plus
// lifecycle and status bookkeeping, usable by any signer rather than one
// specific scheme's token shape.
type Credential struct {
	ID        string
	AccessKey string
	SecretKey string
	Region    string
	Service   string

	Label           string
	Status          Status
	StatusMessage   string
	Disabled        bool
	Quota           QuotaState
	LastError       error
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastRefreshedAt time.Time
	NextRetryAfter  time.Time

	// Attributes carries opaque string configuration (mirrors Auth.Attributes).
	Attributes map[string]string
}

// Clone deep-copies the credential so callers may mutate the clone
// without racing the stored copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

// Usable reports whether the credential may currently be used to sign a
// request: not disabled, not quota-exceeded and past any backoff.
func (c *Credential) Usable(now time.Time) bool {
	if c.Disabled || c.Status == StatusDisabled {
		return false
	}
	if c.Quota.Exceeded && now.Before(c.Quota.NextRecoverAt) {
		return false
	}
	if !c.NextRetryAfter.IsZero() && now.Before(c.NextRetryAfter) {
		return false
	}
	return true
}

// Store persists Credentials; the identitystore package ships Postgres,
// git, and object-storage backends.
type Store interface {
	List(ctx context.Context) ([]*Credential, error)
	Save(ctx context.Context, c *Credential) (string, error)
	Delete(ctx context.Context, id string) error
}
