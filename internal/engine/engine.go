package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trimbot/internal/config"
	"trimbot/internal/links"
	"trimbot/internal/shortener"
)

// Engine binds the rewriter to the process configuration: it owns the
// shortener credential so transports only deal with message text.
type Engine struct {
	rewriter   *links.Rewriter
	credential string
	stats      *Stats
	log        zerolog.Logger
}

type Stats struct {
	mu      sync.Mutex
	counts  map[string]int
	metrics *Metrics
}

func NewStats(m *Metrics) *Stats {
	return &Stats{counts: make(map[string]int), metrics: m}
}

func (s *Stats) Inc(name string, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.counts[name] += n
	s.mu.Unlock()
}

func (s *Stats) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Print writes one "name: count" line per counter, sorted by name.
func (s *Stats) Print(w io.Writer) {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %d\n", name, snap[name])
	}
}

func (s *Stats) record(res links.Result, changed bool) {
	s.Inc("messages", 1)
	if changed {
		s.Inc("messages_rewritten", 1)
	}
	s.Inc("urls_found", len(res.Outcomes))
	s.Inc("spans_replaced", res.Replaced)
	for _, o := range res.Outcomes {
		s.Inc("urls_"+string(o.Status), 1)
	}
	if s.metrics != nil {
		s.metrics.observe(res, changed)
	}
}

// New builds an engine that calls Trimd with the configured credential.
func New(cfg *config.Config, log zerolog.Logger, m *Metrics) (*Engine, error) {
	if err := cfg.RequireShortener(); err != nil {
		return nil, err
	}
	client := shortener.NewTrimd(shortener.WithEndpoint(cfg.Shortener.Endpoint))
	return NewWithShortener(cfg, client, log, m), nil
}

// NewWithShortener is New with an explicit shortener, used by tests and by
// callers that bring their own client.
func NewWithShortener(cfg *config.Config, s links.Shortener, log zerolog.Logger, m *Metrics) *Engine {
	log = log.With().Str("component", "engine").Logger()
	rw := links.NewRewriter(s,
		links.WithLogger(log),
		links.WithCallTimeout(cfg.Shortener.Timeout.Duration),
		links.WithConcurrency(cfg.Shortener.Concurrency),
		links.WithSkipHosts(cfg.Shortener.SkipHosts),
	)
	return &Engine{
		rewriter:   rw,
		credential: cfg.Shortener.APIKey,
		stats:      NewStats(m),
		log:        log,
	}
}

// Apply rewrites the URLs in text. It never fails: URLs that could not be
// shortened are kept. The second return value reports whether the text
// changed.
func (e *Engine) Apply(ctx context.Context, text string) (string, bool) {
	base := e.log
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		base = *l
	}
	reqLog := base.With().Str("request_id", uuid.NewString()).Logger()
	ctx = reqLog.WithContext(ctx)

	res := e.rewriter.RewriteDetailed(ctx, text, e.credential)
	changed := res.Text != text
	e.stats.record(res, changed)

	failed := 0
	for _, o := range res.Outcomes {
		if o.Status == links.StatusFailed {
			failed++
		}
	}
	reqLog.Debug().
		Int("urls", len(res.Outcomes)).
		Int("failed", failed).
		Int("replaced", res.Replaced).
		Bool("changed", changed).
		Msg("message processed")
	return res.Text, changed
}

func (e *Engine) Stats() *Stats {
	return e.stats
}
