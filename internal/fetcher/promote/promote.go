// Package promote composes a static probe fetcher with a headless renderer.
package promote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Fetcher probes with a static fetch and re-renders in a headless browser
// when the detector decides the probe is a script-driven shell.
type Fetcher struct {
	probe    monitor.Fetcher
	headless monitor.Fetcher
	detector monitor.HeadlessDetector
	logger   *zap.Logger
}

// New builds a promoting fetcher. A nil headless fetcher or detector disables
// promotion.
func New(probe monitor.Fetcher, headless monitor.Fetcher, detector monitor.HeadlessDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger,
	}
}

// Fetch runs the probe and, when warranted, the headless fetch. A failed
// headless fetch falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request monitor.FetchRequest) (monitor.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return monitor.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	if promoted, ok := f.maybePromote(ctx, request, resp); ok {
		return promoted, nil
	}
	return resp, nil
}

func (f *Fetcher) maybePromote(
	ctx context.Context,
	request monitor.FetchRequest,
	resp monitor.FetchResponse,
) (monitor.FetchResponse, bool) {
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, false
	}
	headlessResp, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	f.logger.Debug("headless promotion applied", zap.String("url", request.URL))
	return headlessResp, true
}
