// Package feed downloads MITRE ATT&CK STIX bundles.
//
// Bundles come from the mitre/cti GitHub repository as raw JSON, one
// file per ATT&CK domain. The fetcher is the only networked component
// besides reference-page retrieval; everything downstream works from
// decoded bundles or the local snapshot cache.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"threatscope/internal/logging"
	"threatscope/internal/stix"
)

// Domain identifies an ATT&CK technology domain.
type Domain string

const (
	DomainEnterprise Domain = "enterprise-attack"
	DomainMobile     Domain = "mobile-attack"
	DomainICS        Domain = "ics-attack"
)

// Domains returns all known domains in display order.
func Domains() []Domain {
	return []Domain{DomainEnterprise, DomainMobile, DomainICS}
}

// ParseDomain validates a domain string.
func ParseDomain(s string) (Domain, error) {
	for _, d := range Domains() {
		if s == string(d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown ATT&CK domain: %s (valid: %v)", s, Domains())
}

// URL returns the bundle URL for the domain under the given base.
func (d Domain) URL(baseURL string) string {
	return fmt.Sprintf("%s/%s/%s.json", baseURL, d, d)
}

// Config configures the fetcher.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://raw.githubusercontent.com/mitre/cti/master",
		Timeout:      60 * time.Second,
		UserAgent:    "threatscope/0.4.0",
		MaxBodyBytes: 256 << 20,
	}
}

// Progress carries optional per-domain fetch callbacks. Nil hooks are
// skipped.
type Progress struct {
	Start func(domain Domain)
	Done  func(domain Domain, objects int, took time.Duration, err error)
}

// Fetcher downloads and decodes ATT&CK bundles.
type Fetcher struct {
	config   Config
	client   *http.Client
	progress Progress
}

// NewFetcher creates a fetcher. Zero config fields fall back to
// defaults.
func NewFetcher(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	return &Fetcher{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetProgress installs fetch lifecycle callbacks.
func (f *Fetcher) SetProgress(p Progress) {
	f.progress = p
}

// Fetch downloads and decodes one domain bundle.
func (f *Fetcher) Fetch(ctx context.Context, domain Domain) (*stix.Bundle, error) {
	url := domain.URL(f.config.BaseURL)
	timer := logging.StartTimer(logging.CategoryFeed, fmt.Sprintf("fetch %s", domain))

	if f.progress.Start != nil {
		f.progress.Start(domain)
	}

	bundle, err := f.fetchBundle(ctx, url)
	took := timer.Stop()

	if f.progress.Done != nil {
		objects := 0
		if bundle != nil {
			objects = len(bundle.Objects)
		}
		f.progress.Done(domain, objects, took, err)
	}

	if err != nil {
		logging.Feed("fetch %s failed: %v", domain, err)
		return nil, fmt.Errorf("fetch %s: %w", domain, err)
	}

	logging.Feed("fetched %s: %d objects in %v", domain, len(bundle.Objects), took)
	return bundle, nil
}

func (f *Fetcher) fetchBundle(ctx context.Context, url string) (*stix.Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	bundle, err := stix.Decode(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return bundle, nil
}

// FetchAll downloads the given domains in parallel. The first error
// cancels the remaining fetches.
func (f *Fetcher) FetchAll(ctx context.Context, domains []Domain) (map[Domain]*stix.Bundle, error) {
	results := make(map[Domain]*stix.Bundle, len(domains))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for _, domain := range domains {
		eg.Go(func() error {
			bundle, err := f.Fetch(egCtx, domain)
			if err != nil {
				return err
			}
			mu.Lock()
			results[domain] = bundle
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
