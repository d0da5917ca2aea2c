package services

import (
	"context"
	"sync"
	"time"

	"questgen/internal/observability"
	contextutils "questgen/internal/utils"
)

// CredentialPool hands out upstream API keys in round-robin order and
// tracks which keys are quarantined after quota or auth rejections.
// It is the only shared mutable state in the generation path, so all
// cursor and quarantine mutation happens under a single mutex. The
// upstream call itself is never made while the lock is held.
type CredentialPool struct {
	mu          sync.Mutex
	credentials []string
	quarantined map[string]time.Time
	cursor      int

	logger *observability.Logger
}

// NewCredentialPool creates a pool from the configured API keys. The keys
// rotate in configuration order. An empty key list is a configuration
// error, not a runtime condition.
func NewCredentialPool(apiKeys []string, logger *observability.Logger) (*CredentialPool, error) {
	if len(apiKeys) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrAIConfigInvalid, "credential pool requires at least one API key")
	}

	credentials := make([]string, len(apiKeys))
	copy(credentials, apiKeys)

	return &CredentialPool{
		credentials: credentials,
		quarantined: make(map[string]time.Time),
		logger:      logger,
	}, nil
}

// Next returns the next non-quarantined credential, advancing the cursor.
// When every credential is quarantined the quarantine set is cleared
// first, on the assumption that upstream quotas are time-windowed and may
// have recovered since the keys were sidelined.
func (p *CredentialPool) Next(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.quarantined) == len(p.credentials) {
		p.logger.Warn(ctx, "All credentials quarantined, resetting quarantine set", map[string]interface{}{
			"pool_size": len(p.credentials),
		})
		p.quarantined = make(map[string]time.Time)
	}

	available := make([]string, 0, len(p.credentials))
	for _, credential := range p.credentials {
		if _, skip := p.quarantined[credential]; !skip {
			available = append(available, credential)
		}
	}

	credential := available[p.cursor%len(available)]
	p.cursor++
	return credential
}

// Quarantine excludes a credential from rotation until the pool resets.
// Quarantining an already-quarantined or unknown credential is a no-op.
func (p *CredentialPool) Quarantine(ctx context.Context, credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.contains(credential) {
		return
	}
	if _, already := p.quarantined[credential]; already {
		return
	}

	p.quarantined[credential] = time.Now()
	p.logger.Info(ctx, "Credential quarantined", map[string]interface{}{
		"api_key":     contextutils.MaskAPIKey(credential),
		"quarantined": len(p.quarantined),
		"pool_size":   len(p.credentials),
	})
}

// Size returns the number of configured credentials.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.credentials)
}

// QuarantinedCount returns the number of currently quarantined credentials.
func (p *CredentialPool) QuarantinedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.quarantined)
}

// CredentialStatus describes one pool entry for diagnostics. The key is
// masked; the raw secret never leaves the pool except through Next.
type CredentialStatus struct {
	MaskedKey     string     `json:"masked_key"`
	Quarantined   bool       `json:"quarantined"`
	QuarantinedAt *time.Time `json:"quarantined_at,omitempty"`
}

// Snapshot returns the masked state of every credential in configuration
// order, for the health endpoint and the admin CLI.
func (p *CredentialPool) Snapshot() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]CredentialStatus, 0, len(p.credentials))
	for _, credential := range p.credentials {
		status := CredentialStatus{MaskedKey: contextutils.MaskAPIKey(credential)}
		if at, ok := p.quarantined[credential]; ok {
			status.Quarantined = true
			quarantinedAt := at
			status.QuarantinedAt = &quarantinedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (p *CredentialPool) contains(credential string) bool {
	for _, c := range p.credentials {
		if c == credential {
			return true
		}
	}
	return false
}
