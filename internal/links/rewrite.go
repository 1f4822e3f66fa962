package links

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCallTimeout = 5 * time.Second
	DefaultConcurrency = 8
)

// ErrEmptyReplacement is reported when a shortener returns no error and no URL.
var ErrEmptyReplacement = errors.New("shortener returned an empty url")

// Shortener maps a long URL to a short one. credential is passed through
// untouched from the caller of Rewrite.
type Shortener interface {
	Shorten(ctx context.Context, longURL, credential string) (string, error)
}

// ShortenerFunc adapts a plain function to Shortener.
type ShortenerFunc func(ctx context.Context, longURL, credential string) (string, error)

func (f ShortenerFunc) Shorten(ctx context.Context, longURL, credential string) (string, error) {
	return f(ctx, longURL, credential)
}

type Status string

const (
	StatusShortened Status = "shortened"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome is the per-candidate result of one request. Replacement equals URL
// unless Status is StatusShortened.
type Outcome struct {
	URL         string
	Replacement string
	Status      Status
	Err         error
	Elapsed     time.Duration
}

type Result struct {
	Text     string
	Outcomes []Outcome
	// Replaced counts substituted spans, so repeated URLs count once per
	// occurrence.
	Replaced int
}

// Rewriter is safe for concurrent use; it keeps no per-request state.
type Rewriter struct {
	shortener   Shortener
	extractor   *Extractor
	log         zerolog.Logger
	timeout     time.Duration
	concurrency int
	skipHosts   []string
}

type Option func(*Rewriter)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Rewriter) { r.log = l }
}

// WithCallTimeout bounds each shortener call. Non-positive values keep the
// default.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Rewriter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithConcurrency caps the number of shortener calls in flight per request.
func WithConcurrency(n int) Option {
	return func(r *Rewriter) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSkipHosts leaves URLs on these hosts (and their subdomains) untouched
// without calling the shortener.
func WithSkipHosts(hosts []string) Option {
	return func(r *Rewriter) {
		r.skipHosts = r.skipHosts[:0]
		for _, h := range hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				r.skipHosts = append(r.skipHosts, h)
			}
		}
	}
}

func NewRewriter(s Shortener, opts ...Option) *Rewriter {
	r := &Rewriter{
		shortener:   s,
		extractor:   defaultExtractor,
		log:         zerolog.Nop(),
		timeout:     DefaultCallTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite replaces every URL in text with its shortened form. URLs that could
// not be shortened stay as they are; a result equal to text means there was
// nothing to do.
func (r *Rewriter) Rewrite(ctx context.Context, text, credential string) string {
	return r.RewriteDetailed(ctx, text, credential).Text
}

// RewriteDetailed is Rewrite with the per-URL outcomes attached.
func (r *Rewriter) RewriteDetailed(ctx context.Context, text, credential string) Result {
	spans := r.extractor.Spans(text)
	candidates := uniqueMatches(text, spans)
	if len(candidates) == 0 {
		return Result{Text: text}
	}

	outcomes := r.shortenAll(ctx, candidates, credential)

	mapping := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		mapping[o.URL] = o.Replacement
	}
	out, n := substitute(text, spans, mapping)
	return Result{Text: out, Outcomes: outcomes, Replaced: n}
}

func (r *Rewriter) shortenAll(ctx context.Context, candidates []string, credential string) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range candidates {
		i, u := i, u
		g.Go(func() error {
			outcomes[i] = r.shortenOne(ctx, u, credential)
			return nil
		})
	}
	// Failures are recorded in outcomes; nothing is returned through the group.
	_ = g.Wait()
	return outcomes
}

func (r *Rewriter) shortenOne(ctx context.Context, u, credential string) Outcome {
	log := r.logger(ctx)
	if r.skip(u) {
		log.Debug().Str("url", u).Msg("host on skip list, keeping url")
		return Outcome{URL: u, Replacement: u, Status: StatusSkipped}
	}

	start := time.Now()
	short, err := r.call(ctx, u, credential)
	elapsed := time.Since(start)
	if err == nil && short == "" {
		err = ErrEmptyReplacement
	}
	if err != nil {
		log.Warn().Err(err).Str("url", u).Dur("elapsed", elapsed).Msg("shortening failed, keeping original url")
		return Outcome{URL: u, Replacement: u, Status: StatusFailed, Err: err, Elapsed: elapsed}
	}

	log.Debug().Str("url", u).Str("short", short).Dur("elapsed", elapsed).Msg("url shortened")
	return Outcome{URL: u, Replacement: short, Status: StatusShortened, Elapsed: elapsed}
}

// logger prefers a request logger carried in ctx over the rewriter's own.
func (r *Rewriter) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &r.log
}

// call runs one shortener request under the per-call timeout. The timeout is
// enforced here as well, so a shortener that ignores ctx cannot stall the
// request.
func (r *Rewriter) call(ctx context.Context, u, credential string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type reply struct {
		short string
		err   error
	}
	ch := make(chan reply, 1)
	go func() {
		short, err := r.shortener.Shorten(callCtx, u, credential)
		ch <- reply{short: short, err: err}
	}()

	select {
	case rep := <-ch:
		return rep.short, rep.err
	case <-callCtx.Done():
		return "", errors.Wrap(callCtx.Err(), "shorten")
	}
}

func (r *Rewriter) skip(u string) bool {
	if len(r.skipHosts) == 0 {
		return false
	}
	raw := u
	if strings.HasPrefix(raw, "www.") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, h := range r.skipHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func uniqueMatches(text string, spans [][]int) []string {
	if len(spans) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(spans))
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		m := text[s[0]:s[1]]
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// substitute splices replacements into text over the given match spans in a
// single left-to-right pass. Each span is looked up as a whole, so a URL that
// is a prefix of a longer URL never rewrites part of the longer one, and
// replacement text is never rescanned.
func substitute(text string, spans [][]int, mapping map[string]string) (string, int) {
	var b strings.Builder
	last := 0
	replaced := 0

	for _, s := range spans {
		start, end := s[0], s[1]
		orig := text[start:end]
		rep, ok := mapping[orig]
		if !ok || rep == orig {
			continue
		}
		if replaced == 0 {
			b.Grow(len(text))
		}
		b.WriteString(text[last:start])
		b.WriteString(rep)
		last = end
		replaced++
	}

	if replaced == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), replaced
}
