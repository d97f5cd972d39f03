// Package ingestion turns the node's pending-transaction feed into decoded
// trade intents: subscribe, batch, resolve, match against the alpha set,
// decode. Downstream consumers read from Intents.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alpha-mirror/internal/decoder"
	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/observability"
)

// ErrRetriesExhausted means the stream could not be re-established within
// the reconnect budget. It is fatal: the orchestrator shuts the process
// down rather than trade blind.
var ErrRetriesExhausted = errors.New("ingestion: stream reconnect attempts exhausted")

// HashStream is one subscription attempt against the node's WebSocket feed.
type HashStream interface {
	SubscribePendingTransactions(ctx context.Context, out chan<- common.Hash) error
}

// TxResolver resolves pending hashes to transaction bodies.
type TxResolver interface {
	TransactionsByHash(ctx context.Context, hashes []common.Hash) ([]*domain.PendingTransaction, error)
}

// WalletRegistry answers sender-matching lookups.
type WalletRegistry interface {
	Get(addr string) *domain.AlphaWallet
}

// IntentDecoder classifies a matched transaction.
type IntentDecoder interface {
	Decode(tx *domain.PendingTransaction, wallet common.Address) (*domain.TradeIntent, error)
}

// Config tunes the ingestion pipeline. Zero values take documented defaults.
type Config struct {
	BatchSize     int           // hashes per RPC batch
	FlushInterval time.Duration // max wait before a partial batch ships
	// Reconnect policy: delay doubles from ReconnectBase per consecutive
	// failure, up to MaxReconnects attempts. A healthy connection resets
	// the counter.
	ReconnectBase time.Duration
	MaxReconnects int
	// IntentBuffer sizes the output channel.
	IntentBuffer int
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.IntentBuffer == 0 {
		c.IntentBuffer = 128
	}
}

// Runner drives the ingestion pipeline.
type Runner struct {
	stream   HashStream
	resolver TxResolver
	registry WalletRegistry
	decoder  IntentDecoder
	config   Config
	metrics  *observability.Metrics
	logger   *zap.Logger

	intents chan *domain.TradeIntent
}

// NewRunner creates an ingestion runner. config may be nil for defaults.
func NewRunner(stream HashStream, resolver TxResolver, registry WalletRegistry, dec IntentDecoder, config *Config, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stream:   stream,
		resolver: resolver,
		registry: registry,
		decoder:  dec,
		config:   cfg,
		metrics:  metrics,
		logger:   logger,
		intents:  make(chan *domain.TradeIntent, cfg.IntentBuffer),
	}
}

// Intents is the stream of decoded trade intents from tracked wallets.
// Closed when Run returns.
func (r *Runner) Intents() <-chan *domain.TradeIntent {
	return r.intents
}

// Run operates the pipeline until ctx is cancelled or the reconnect budget
// is spent. The returned error is ctx.Err() on clean shutdown and wraps
// ErrRetriesExhausted when the stream is gone for good.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.intents)

	hashes := make(chan common.Hash, r.config.BatchSize*2)
	batches := make(chan []common.Hash, 4)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(hashes)
		return r.streamLoop(ctx, hashes)
	})

	batcher := NewBatcher(r.config.BatchSize, r.config.FlushInterval)
	g.Go(func() error {
		defer close(batches)
		return batcher.Run(ctx, hashes, batches)
	})

	g.Go(func() error {
		return r.resolveLoop(ctx, batches)
	})

	return g.Wait()
}

// streamLoop keeps one subscription alive, reconnecting with doubling
// delays. Consecutive failures count against the budget; a connection that
// survives well past the base delay resets it.
func (r *Runner) streamLoop(ctx context.Context, hashes chan<- common.Hash) error {
	attempt := 0
	for {
		started := time.Now()
		err := r.stream.SubscribePendingTransactions(ctx, hashes)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(started) > r.config.ReconnectBase*4 {
			attempt = 0
		}
		attempt++
		if attempt > r.config.MaxReconnects {
			return fmt.Errorf("%w: last error: %v", ErrRetriesExhausted, err)
		}

		delay := r.config.ReconnectBase << (attempt - 1)
		r.logger.Warn("stream dropped, reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.config.MaxReconnects),
			zap.Duration("delay", delay),
			zap.Error(err))
		if r.metrics != nil {
			r.metrics.StreamReconnects.Inc()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resolveLoop resolves batches and forwards decoded intents from tracked
// wallets. Resolution errors are logged and skipped; the node dropping a
// batch must not kill ingestion.
func (r *Runner) resolveLoop(ctx context.Context, batches <-chan []common.Hash) error {
	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			r.handleBatch(ctx, batch)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) handleBatch(ctx context.Context, batch []common.Hash) {
	started := time.Now()
	if r.metrics != nil {
		r.metrics.HashesReceived.Add(float64(len(batch)))
		r.metrics.BatchesResolved.Inc()
		r.metrics.LastHashReceived.Set(float64(time.Now().Unix()))
	}

	txs, err := r.resolver.TransactionsByHash(ctx, batch)
	if err != nil {
		if r.metrics != nil {
			r.metrics.BatchResolveErrors.Inc()
		}
		r.logger.Warn("batch resolution failed",
			zap.Int("hashes", len(batch)), zap.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.TxResolved.Add(float64(len(txs)))
	}

	for _, tx := range txs {
		wallet := r.registry.Get(tx.From.Hex())
		if wallet == nil {
			continue
		}
		if r.metrics != nil {
			r.metrics.AlphaMatches.Inc()
		}

		intent, err := r.decoder.Decode(tx, tx.From)
		if err != nil {
			if r.metrics != nil {
				r.metrics.DecodeRejections.WithLabelValues(rejectionLabel(err)).Inc()
			}
			continue
		}

		r.logger.Info("alpha intent detected",
			zap.String("wallet", tx.From.Hex()),
			zap.String("direction", string(intent.Direction)),
			zap.String("token", intent.Token.Hex()),
			zap.Float64("amount_eth", intent.AmountETH),
			zap.String("tx", tx.Hash.Hex()))
		if r.metrics != nil {
			r.metrics.IntentsDecoded.WithLabelValues(string(intent.Direction)).Inc()
			r.metrics.IntentQueueDepth.Set(float64(len(r.intents)))
		}

		select {
		case r.intents <- intent:
		case <-ctx.Done():
			return
		}
	}

	if r.metrics != nil {
		r.metrics.DetectionLatency.Observe(time.Since(started).Seconds())
	}
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, decoder.ErrNotRouter):
		return "not_router"
	case errors.Is(err, decoder.ErrUnknownSelector):
		return "unknown_selector"
	case errors.Is(err, decoder.ErrMalformedCalldata):
		return "malformed_calldata"
	}
	return "other"
}
