package relief

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FeedPoller periodically refreshes the zone list from an external disaster
// feed. A failed poll keeps the previous zones; the poller never fails the
// process.
type FeedPoller struct {
	svc        *Service
	feedURL    string
	interval   time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFeedPoller creates a poller for the given feed URL.
func NewFeedPoller(svc *Service, feedURL string, interval time.Duration, logger *zap.Logger) *FeedPoller {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	return &FeedPoller{
		svc:        svc,
		feedURL:    feedURL,
		interval:   interval,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Run polls until the context is cancelled. It performs one immediate poll
// before settling into the interval.
func (p *FeedPoller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *FeedPoller) poll(ctx context.Context) {
	zones, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("disaster feed poll failed", zap.String("url", p.feedURL), zap.Error(err))
		return
	}
	if len(zones) == 0 {
		p.logger.Warn("disaster feed returned no zones, keeping previous set")
		return
	}
	p.svc.SetZones(zones)
	p.logger.Info("disaster zones refreshed", zap.Int("zones", len(zones)))
}

func (p *FeedPoller) fetch(ctx context.Context) ([]Zone, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	var zones []Zone
	if err := json.NewDecoder(resp.Body).Decode(&zones); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return zones, nil
}
