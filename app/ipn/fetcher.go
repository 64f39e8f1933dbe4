package ipn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
)

type HTTPCertificateFetcher struct {
	client *resty.Client
}

func NewHTTPCertificateFetcher(timeout time.Duration) *HTTPCertificateFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.NoRedirectPolicy())
	return &HTTPCertificateFetcher{client: client}
}

func (f *HTTPCertificateFetcher) Fetch(ctx context.Context, certURL string) ([]byte, error) {
	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(certURL)
	metrics.CertificateFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("certificate request failed: status=%d", resp.StatusCode())
	}
	return resp.Body(), nil
}

type cachedCertificate struct {
	body      []byte
	expiresAt time.Time
}

// CachingFetcher keeps fetched certificates for a fixed TTL.
type CachingFetcher struct {
	next CertificateFetcher
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	certs map[string]cachedCertificate
}

// NewCachingFetcher wraps next; a non-positive ttl returns next unchanged.
func NewCachingFetcher(next CertificateFetcher, ttl time.Duration) CertificateFetcher {
	if ttl <= 0 {
		return next
	}
	return &CachingFetcher{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		certs: map[string]cachedCertificate{},
	}
}

func (f *CachingFetcher) Fetch(ctx context.Context, certURL string) ([]byte, error) {
	now := f.now()

	f.mu.Lock()
	cached, ok := f.certs[certURL]
	f.mu.Unlock()
	if ok && now.Before(cached.expiresAt) {
		metrics.CertificateCacheHitsTotal.Inc()
		return cached.body, nil
	}

	body, err := f.next.Fetch(ctx, certURL)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.certs[certURL] = cachedCertificate{body: body, expiresAt: now.Add(f.ttl)}
	f.mu.Unlock()
	return body, nil
}
