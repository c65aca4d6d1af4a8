package ingest

import (
	"errors"
	"log/slog"
	"time"

	"github.com/onda-social/onda/internal/post"
)

// Processor applies parsed content-value signals to the post store. It is
// the MessageHandler given to the stream client.
//
// Malformed signals and signals for unknown posts are logged and skipped:
// the stream is best-effort and one bad message must not wedge the consumer.
type Processor struct {
	repo    post.PostRepository
	logger  *slog.Logger
	metrics *Metrics
}

// NewProcessor creates a signal processor. metrics may be nil.
func NewProcessor(repo post.PostRepository, logger *slog.Logger, metrics *Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{repo: repo, logger: logger, metrics: metrics}
}

// Handle processes one raw stream message. It always returns nil: signal
// application failures are absorbed here so the connection stays up.
func (p *Processor) Handle(_ int, payload []byte) error {
	start := time.Now()
	p.metrics.incProcessed()

	sig, err := ParseSignal(payload)
	if err != nil {
		p.metrics.incErrors()
		p.logger.Warn("skipping malformed signal", slog.String("error", err.Error()))
		return nil
	}

	if err := p.apply(sig); err != nil {
		if errors.Is(err, post.ErrPostNotFound) {
			// The pipeline can emit before the post exists locally or
			// after it was deleted.
			p.metrics.incUnknownPost()
			p.logger.Debug("signal for unknown post",
				slog.String("kind", sig.Kind),
				slog.String("post_id", sig.PostID()))
			return nil
		}
		p.metrics.incErrors()
		p.logger.Error("failed to apply signal",
			slog.String("kind", sig.Kind),
			slog.String("post_id", sig.PostID()),
			slog.String("error", err.Error()))
		return nil
	}

	p.metrics.incApplied(sig.Kind)
	p.metrics.observeLatency(time.Since(start).Seconds())
	return nil
}

func (p *Processor) apply(sig *ParsedSignal) error {
	switch sig.Kind {
	case KindValue:
		score := &post.ValueScore{Total: sig.Value.Total, Confidence: sig.Value.Confidence}
		return p.repo.AttachValueSignal(sig.Value.PostID, score, "")
	case KindFactCheck:
		return p.repo.AttachValueSignal(sig.FactCheck.PostID, nil, post.FactCheckStatus(sig.FactCheck.Verdict))
	case KindAudienceEmbedding:
		return p.repo.SetAudienceEmbedding(sig.AudienceEmbedding.PostID, sig.AudienceEmbedding.Embedding)
	}
	return ErrUnknownKind
}
