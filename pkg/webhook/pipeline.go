package webhook

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/velora/storefront-cache/pkg/domaincache"
	"github.com/velora/storefront-cache/pkg/logging"
)

var (
	webhooksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecache_webhooks_processed_total",
		Help: "Total webhook payloads processed by resource type",
	}, []string{"resource_type"})

	webhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecache_webhooks_rejected_total",
		Help: "Total webhook payloads rejected before processing",
	}, []string{"reason"}) // "signature", "malformed"
)

// PageCache is the slice of the page cache manager the pipeline needs.
type PageCache interface {
	InvalidateByTags(ctx context.Context, tags []string) int
}

// TypedCache is the slice of the domain cache the pipeline needs.
type TypedCache interface {
	InvalidateByTag(tag string) int
	InvalidateByType(category domaincache.Category) int
}

// Revalidator triggers regeneration of pre-rendered pages after an
// invalidation. Implementations must be non-blocking-safe: the pipeline
// invokes them in a goroutine and ignores any failure.
type Revalidator interface {
	Revalidate(ctx context.Context, paths ...string)
}

// NopRevalidator is the default Revalidator.
type NopRevalidator struct{}

func (NopRevalidator) Revalidate(context.Context, ...string) {}

// Pipeline verifies, classifies and applies inbound change notifications.
type Pipeline struct {
	secret string
	pages  PageCache
	typed  TypedCache
	reval  Revalidator
	logger zerolog.Logger
}

// NewPipeline creates an invalidation pipeline. An empty secret disables
// signature verification; this is a development-mode fallback and is logged
// as unsafe for production.
func NewPipeline(secret string, pages PageCache, typed TypedCache, reval Revalidator) *Pipeline {
	logger := logging.NewLogger("webhook")

	if secret == "" {
		logger.Warn().Msg("no webhook signing secret configured, signature verification DISABLED - unsafe for production")
	}
	if reval == nil {
		reval = NopRevalidator{}
	}

	return &Pipeline{
		secret: secret,
		pages:  pages,
		typed:  typed,
		reval:  reval,
		logger: logger,
	}
}

// Process verifies and routes one payload. Returns ErrBadSignature,
// ErrEmptyPayload or ErrMalformedPayload for rejected requests; any cache
// interaction happens only after all checks pass.
func (p *Pipeline) Process(ctx context.Context, body []byte, signature string) error {
	if len(body) == 0 {
		webhooksRejectedTotal.WithLabelValues("malformed").Inc()
		return ErrEmptyPayload
	}

	if p.secret != "" && !VerifySignature(p.secret, body, signature) {
		webhooksRejectedTotal.WithLabelValues("signature").Inc()
		p.logger.Error().Msg("webhook signature verification failed")
		return ErrBadSignature
	}

	payload, err := parsePayload(body)
	if err != nil {
		webhooksRejectedTotal.WithLabelValues("malformed").Inc()
		return err
	}

	p.route(ctx, payload)
	webhooksProcessedTotal.WithLabelValues(payload.ResourceType).Inc()
	return nil
}

// route maps resource type and action onto cache invalidation in both
// caches. Unknown resource types and actions are logged and acknowledged so
// the sender is never encouraged to retry a classification miss.
func (p *Pipeline) route(ctx context.Context, payload *Payload) {
	logger := p.logger.With().
		Str("webhook_id", payload.ID).
		Str("resource_type", payload.ResourceType).
		Str("action", payload.Action).
		Logger()

	id := payload.ResourceID()

	switch payload.ResourceType {
	case "order":
		p.invalidate(ctx, logger,
			withID([]string{"orders"}, "order:", id),
			domaincache.CategoryOrders)

	case "product":
		tags := withID([]string{"products"}, "product:", id)
		if payload.Action == "deleted" {
			// Category listings reference products, a removal changes them.
			tags = append(tags, "categories")
		}
		p.invalidate(ctx, logger, tags, domaincache.CategoryProducts)
		p.revalidate(ctx, withID([]string{"/products"}, "/products/", id))

	case "customer":
		p.invalidate(ctx, logger,
			withID([]string{"customers"}, "customer:", id),
			domaincache.CategoryCustomers)

	case "category":
		// Category changes reshuffle product listings as well.
		p.invalidate(ctx, logger,
			withID([]string{"categories", "products"}, "category:", id),
			domaincache.CategoryProducts)
		p.revalidate(ctx, []string{"/products"})

	default:
		logger.Info().Msg("unknown webhook resource type acknowledged")
		return
	}

	logger.Info().Msg("webhook payload routed")
}

// invalidate applies tag invalidation to both caches.
func (p *Pipeline) invalidate(ctx context.Context, logger zerolog.Logger, tags []string, category domaincache.Category) {
	pagesRemoved := p.pages.InvalidateByTags(ctx, tags)

	typedRemoved := 0
	for _, tag := range tags {
		typedRemoved += p.typed.InvalidateByTag(tag)
	}
	typedRemoved += p.typed.InvalidateByType(category)

	logger.Debug().
		Strs("tags", tags).
		Int("pages_removed", pagesRemoved).
		Int("typed_removed", typedRemoved).
		Msg("caches invalidated")
}

// revalidate fires the revalidator without blocking the webhook response.
func (p *Pipeline) revalidate(ctx context.Context, paths []string) {
	go p.reval.Revalidate(context.WithoutCancel(ctx), paths...)
}

// withID appends prefix+id to tags when id is non-empty.
func withID(tags []string, prefix, id string) []string {
	if id != "" {
		tags = append(tags, prefix+id)
	}
	return tags
}
