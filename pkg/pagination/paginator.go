package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/intercom-export/pkg/conversation"
	"github.com/Sternrassler/intercom-export/pkg/intercom"
	"github.com/Sternrassler/intercom-export/pkg/output"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for the export loop.
var (
	exportPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intercom_export_pages_written_total",
		Help: "Total number of pages written to output",
	})

	exportPageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intercom_export_page_duration_seconds",
		Help:    "Time from listing request to written file per page",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60},
	})
)

var tracer = otel.Tracer("github.com/Sternrassler/intercom-export/pkg/pagination")

// Lister fetches one page of the conversations listing.
type Lister interface {
	ListConversations(ctx context.Context, cursor intercom.PageCursor) (*intercom.ConversationPage, error)
}

// Normalizer turns one conversation ref into an export record.
type Normalizer interface {
	Normalize(ctx context.Context, ref intercom.ConversationRef) (conversation.Normalized, error)
}

// Guard pauses after a listing response when the quota is low.
type Guard interface {
	Wait(ctx context.Context, headers http.Header) (time.Duration, error)
}

// Namer names the output file of a page (1-based index).
type Namer interface {
	Name(page int) string
}

// Config holds paginator configuration.
type Config struct {
	// PerPage is the listing page size. It never changes during a run.
	PerPage int

	// MaxConcurrency bounds in-flight detail fetches per page.
	// 0 means PerPage, i.e. the whole page at once.
	MaxConcurrency int
}

// DefaultConfig returns 5 conversations per page, all fetched in parallel.
func DefaultConfig() Config {
	return Config{
		PerPage:        5,
		MaxConcurrency: 0,
	}
}

// Deps are the collaborators of a Paginator.
type Deps struct {
	Lister     Lister
	Normalizer Normalizer
	Guard      Guard
	Sink       output.Sink
	Namer      Namer
}

// Result summarizes a finished run.
type Result struct {
	Pages         int
	Conversations int
	Files         []string
	Throttled     time.Duration
}

// Paginator runs the export loop.
type Paginator struct {
	deps         Deps
	config       Config
	logger       zerolog.Logger
	onTransition func(from, to State)
}

// New creates a new Paginator.
func New(deps Deps, config Config, logger zerolog.Logger) *Paginator {
	if config.PerPage <= 0 {
		config.PerPage = 5
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = config.PerPage
	}

	return &Paginator{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

// OnTransition registers a hook called on every state change.
func (p *Paginator) OnTransition(fn func(from, to State)) {
	p.onTransition = fn
}

// Run performs the full extraction. It stops at the first response without
// a next page, or at the first error.
func (p *Paginator) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pagination.run")
	defer span.End()

	start := time.Now()
	result := &Result{}

	cursor := &intercom.PageCursor{PerPage: p.config.PerPage}
	state := StateFetching
	pageIndex := 0

	var page *intercom.ConversationPage
	var batch []conversation.Normalized
	var pageStart time.Time

	p.logger.Info().
		Int("per_page", p.config.PerPage).
		Int("max_concurrency", p.config.MaxConcurrency).
		Msg("Starting conversation export")

	for state != StateDone {
		switch state {
		case StateFetching:
			pageIndex++
			pageStart = time.Now()

			var err error
			page, err = p.fetch(ctx, pageIndex, *cursor, result)
			if err != nil {
				return p.fail(span, result, err)
			}
			state = p.transition(state, StateNormalizing)

		case StateNormalizing:
			var err error
			batch, err = p.normalize(ctx, pageIndex, page.Conversations)
			if err != nil {
				return p.fail(span, result, err)
			}
			state = p.transition(state, StateWriting)

		case StateWriting:
			name, err := p.write(ctx, pageIndex, batch)
			if err != nil {
				return p.fail(span, result, err)
			}

			result.Pages++
			result.Conversations += len(batch)
			result.Files = append(result.Files, name)
			exportPagesTotal.Inc()
			exportPageDuration.Observe(time.Since(pageStart).Seconds())

			p.logger.Info().
				Int("page", pageIndex).
				Int("conversations", len(batch)).
				Str("file", name).
				Bool("has_next", page.HasNext()).
				Msg("Page written")

			if !page.HasNext() {
				cursor = nil
				state = p.transition(state, StateDone)
				break
			}
			cursor = cursor.Next(page.NextCursor())
			state = p.transition(state, StateFetching)
		}
	}

	span.SetAttributes(
		attribute.Int("export.pages", result.Pages),
		attribute.Int("export.conversations", result.Conversations),
	)

	p.logger.Info().
		Int("pages", result.Pages).
		Int("conversations", result.Conversations).
		Dur("throttled", result.Throttled).
		Dur("duration", time.Since(start)).
		Msg("Export complete")

	return result, nil
}

// fetch lists one page and applies the quota guard to its headers.
func (p *Paginator) fetch(ctx context.Context, pageIndex int, cursor intercom.PageCursor, result *Result) (*intercom.ConversationPage, error) {
	ctx, span := tracer.Start(ctx, "pagination.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page", pageIndex),
		attribute.String("starting_after", cursor.StartingAfter),
	)

	page, err := p.deps.Lister.ListConversations(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageIndex, err)
	}

	// A next page without a token would restart the listing from the top.
	if page.HasNext() && page.NextCursor() == "" {
		return nil, fmt.Errorf("page %d: %w", pageIndex, &intercom.APIError{
			StatusCode: http.StatusOK,
			ErrorClass: intercom.ErrorClassDecode,
			Endpoint:   "/conversations",
			Message:    "pages.next without starting_after",
		})
	}

	slept, err := p.deps.Guard.Wait(ctx, page.Header)
	result.Throttled += slept
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageIndex, err)
	}

	p.logger.Debug().
		Int("page", pageIndex).
		Int("refs", len(page.Conversations)).
		Str("starting_after", cursor.StartingAfter).
		Msg("Page fetched")

	return page, nil
}

// normalize resolves all refs of a page concurrently. Results keep the order
// of refs. The first failure cancels the rest and fails the page.
func (p *Paginator) normalize(ctx context.Context, pageIndex int, refs []intercom.ConversationRef) ([]conversation.Normalized, error) {
	ctx, span := tracer.Start(ctx, "pagination.normalize")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page", pageIndex),
		attribute.Int("refs", len(refs)),
	)

	results := make([]conversation.Normalized, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrency)

	for i, ref := range refs {
		g.Go(func() error {
			n, err := p.deps.Normalizer.Normalize(gctx, ref)
			if err != nil {
				return err
			}
			results[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("page %d: %w", pageIndex, err)
	}
	return results, nil
}

// write serializes the batch and stores it under a fresh name.
func (p *Paginator) write(ctx context.Context, pageIndex int, batch []conversation.Normalized) (string, error) {
	ctx, span := tracer.Start(ctx, "pagination.write")
	defer span.End()

	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("page %d: marshal batch: %w", pageIndex, err)
	}

	name := p.deps.Namer.Name(pageIndex)
	span.SetAttributes(attribute.String("file", name))

	if err := p.deps.Sink.Write(ctx, name, data); err != nil {
		return "", fmt.Errorf("page %d: write %s: %w", pageIndex, name, err)
	}
	return name, nil
}

func (p *Paginator) transition(from, to State) State {
	p.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
	if p.onTransition != nil {
		p.onTransition(from, to)
	}
	return to
}

func (p *Paginator) fail(span trace.Span, result *Result, err error) (*Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "export failed")
	p.logger.Error().
		Err(err).
		Int("pages_written", result.Pages).
		Msg("Export aborted")
	return result, err
}
