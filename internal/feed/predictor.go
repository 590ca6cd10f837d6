package feed

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"golang.org/x/time/rate"

	"main/internal/schema"
)

const (
	// suppressAfter is the consecutive-parse-failure burst that trips
	// suppression for a source.
	suppressAfter = 5
	maxBodyBytes  = 1 << 16
)

// ParseFunc turns a raw payload into a predictor tick.
type ParseFunc func(payload []byte, tsMs int64) (schema.PredictorTick, error)

// HTTPPredictor polls one predictor URL and parses its payload. After a
// burst of parse failures the source is suppressed until the cool-down
// limiter grants a token.
type HTTPPredictor struct {
	source string
	url    string
	client *http.Client
	parse  ParseFunc
	nowMs  func() int64

	cooldown   *rate.Limiter
	burst      int
	suppressed atomic.Bool

	ticks       uint64
	parseErrors uint64
}

// NewHTTPPredictor creates a poller for one predictor source.
func NewHTTPPredictor(source, url string, client *http.Client, parse ParseFunc) *HTTPPredictor {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	return &HTTPPredictor{
		source: source,
		url:    url,
		client: client,
		parse:  parse,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
		// one recovery probe every 10s once suppressed
		cooldown: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Subscribe validates the source configuration.
func (p *HTTPPredictor) Subscribe(_ context.Context) error {
	if p.url == "" {
		return errors.Errorf("predictor url required, source: %s", p.source)
	}
	return nil
}

// NextTick fetches and parses one predictor sample.
func (p *HTTPPredictor) NextTick(ctx context.Context) (schema.PredictorTick, error) {
	if p.suppressed.Load() && !p.cooldown.Allow() {
		return schema.PredictorTick{}, errors.Errorf("predictor suppressed, source: %s", p.source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return schema.PredictorTick{}, errors.Wrap(err, "build predictor request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return schema.PredictorTick{}, errors.Wrap(err, "fetch predictor")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return schema.PredictorTick{}, errors.Errorf("predictor status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return schema.PredictorTick{}, errors.Wrap(err, "read predictor body")
	}

	tick, err := p.parse(body, p.nowMs())
	if err != nil {
		atomic.AddUint64(&p.parseErrors, 1)
		p.burst++
		if p.burst >= suppressAfter {
			p.suppressed.Store(true)
		}
		return schema.PredictorTick{}, errors.Wrap(err, "parse predictor payload").With("source", p.source)
	}

	p.burst = 0
	p.suppressed.Store(false)
	atomic.AddUint64(&p.ticks, 1)
	return tick, nil
}

// Health returns the source's counters and suppression state.
func (p *HTTPPredictor) Health() Health {
	ticks := atomic.LoadUint64(&p.ticks)
	parseErrors := atomic.LoadUint64(&p.parseErrors)
	suppressed := p.suppressed.Load()
	return Health{
		Source:      p.source,
		Healthy:     ticks > 0 && !suppressed,
		Ticks:       ticks,
		ParseErrors: parseErrors,
		Suppressed:  suppressed,
	}
}
