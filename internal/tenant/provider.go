// Package tenant resolves tenant configuration by application name.
package tenant

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msapprovals/watchdog/internal/approval"
)

// Lister is the storage-side contract the provider consumes.
type Lister interface {
	ListTenants(ctx context.Context) ([]approval.TenantInfo, error)
}

// Provider caches the tenant list and resolves tenants case-insensitively
// by app name. A miss returns nil, not an error; the caller decides what a
// missing tenant means.
type Provider struct {
	store Lister
	ttl   time.Duration
	log   *zap.Logger

	mu        sync.RWMutex
	byApp     map[string]*approval.TenantInfo
	all       []approval.TenantInfo
	refreshed time.Time
}

// NewProvider creates a tenant provider with the given cache TTL.
func NewProvider(store Lister, ttl time.Duration, log *zap.Logger) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{store: store, ttl: ttl, log: log}
}

// Resolve returns the tenant for an app name, or nil when no tenant
// matches.
func (p *Provider) Resolve(ctx context.Context, appName string) (*approval.TenantInfo, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byApp[strings.ToLower(appName)], nil
}

// Active returns all onboarded tenants.
func (p *Provider) Active(ctx context.Context) ([]approval.TenantInfo, error) {
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]approval.TenantInfo, len(p.all))
	copy(out, p.all)
	return out, nil
}

func (p *Provider) refresh(ctx context.Context) error {
	p.mu.RLock()
	fresh := time.Since(p.refreshed) < p.ttl && p.byApp != nil
	p.mu.RUnlock()
	if fresh {
		return nil
	}

	tenants, err := p.store.ListTenants(ctx)
	if err != nil {
		return err
	}

	byApp := make(map[string]*approval.TenantInfo, len(tenants))
	for i := range tenants {
		byApp[strings.ToLower(tenants[i].AppName)] = &tenants[i]
	}

	p.mu.Lock()
	p.byApp = byApp
	p.all = tenants
	p.refreshed = time.Now()
	p.mu.Unlock()

	p.log.Debug("tenant cache refreshed", zap.Int("tenants", len(tenants)))
	return nil
}
