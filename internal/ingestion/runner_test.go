package ingestion

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	dto "github.com/prometheus/client_model/go"

	"alpha-mirror/internal/decoder"
	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/observability"
)

// scriptedStream runs one scripted step per subscribe call and blocks on ctx
// once the script is spent.
type scriptedStream struct {
	mu    sync.Mutex
	calls int
	steps []func(ctx context.Context, out chan<- common.Hash) error
}

func (s *scriptedStream) SubscribePendingTransactions(ctx context.Context, out chan<- common.Hash) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.steps) {
		return s.steps[i](ctx, out)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedStream) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type scriptedResolver struct {
	mu      sync.Mutex
	batches int
	respond func(call int, batch []common.Hash) ([]*domain.PendingTransaction, error)
}

func (r *scriptedResolver) TransactionsByHash(_ context.Context, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
	r.mu.Lock()
	call := r.batches
	r.batches++
	r.mu.Unlock()
	return r.respond(call, hashes)
}

type mapRegistry map[string]*domain.AlphaWallet

func (m mapRegistry) Get(addr string) *domain.AlphaWallet {
	return m[strings.ToLower(addr)]
}

type stubDecoder struct {
	err error
}

func (d *stubDecoder) Decode(tx *domain.PendingTransaction, wallet common.Address) (*domain.TradeIntent, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &domain.TradeIntent{
		Wallet:    wallet,
		Token:     *tx.To,
		TxHash:    tx.Hash,
		AmountETH: tx.ValueETH(),
		Direction: domain.DirectionBuy,
	}, nil
}

var (
	whaleAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	randomAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func fastConfig() *Config {
	return &Config{
		BatchSize:     4,
		FlushInterval: 5 * time.Millisecond,
		ReconnectBase: time.Millisecond,
		MaxReconnects: 3,
		IntentBuffer:  16,
	}
}

func trackedRegistry() mapRegistry {
	return mapRegistry{
		strings.ToLower(whaleAddr.Hex()): {Address: whaleAddr.Hex(), Score: 0.9},
	}
}

func pendingFrom(from common.Address, hash common.Hash) *domain.PendingTransaction {
	return &domain.PendingTransaction{
		Hash:  hash,
		From:  from,
		To:    &tokenAddr,
		Value: big.NewInt(2e18),
	}
}

func TestRunner_RetriesExhausted(t *testing.T) {
	dropped := errors.New("connection reset")
	stream := &scriptedStream{}
	for i := 0; i < 10; i++ {
		stream.steps = append(stream.steps, func(context.Context, chan<- common.Hash) error {
			return dropped
		})
	}
	resolver := &scriptedResolver{respond: func(int, []common.Hash) ([]*domain.PendingTransaction, error) {
		return nil, nil
	}}

	r := NewRunner(stream, resolver, trackedRegistry(), &stubDecoder{}, fastConfig(), nil, nil)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run = %v, want ErrRetriesExhausted", err)
	}
	// MaxReconnects failures after the initial drop spend the budget.
	if got := stream.callCount(); got != 4 {
		t.Errorf("subscribe called %d times, want 4", got)
	}
	if _, open := <-r.Intents(); open {
		t.Error("Intents not closed after Run returned")
	}
}

func TestRunner_EmitsOnlyTrackedIntents(t *testing.T) {
	whaleHash := hashN(1)
	otherHash := hashN(2)
	stream := &scriptedStream{steps: []func(context.Context, chan<- common.Hash) error{
		func(ctx context.Context, out chan<- common.Hash) error {
			out <- whaleHash
			out <- otherHash
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	resolver := &scriptedResolver{respond: func(_ int, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
		txs := make([]*domain.PendingTransaction, 0, len(hashes))
		for _, h := range hashes {
			if h == whaleHash {
				txs = append(txs, pendingFrom(whaleAddr, h))
			} else {
				txs = append(txs, pendingFrom(randomAddr, h))
			}
		}
		return txs, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRunner(stream, resolver, trackedRegistry(), &stubDecoder{}, fastConfig(), nil, nil)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case intent := <-r.Intents():
		if intent.Wallet != whaleAddr {
			t.Errorf("intent wallet = %s, want %s", intent.Wallet.Hex(), whaleAddr.Hex())
		}
		if intent.Token != tokenAddr {
			t.Errorf("intent token = %s", intent.Token.Hex())
		}
		if intent.AmountETH != 2.0 {
			t.Errorf("intent amount = %v, want 2.0", intent.AmountETH)
		}
	case <-time.After(time.Second):
		t.Fatal("no intent emitted")
	}

	// The untracked sender must not produce a second intent.
	select {
	case intent := <-r.Intents():
		t.Fatalf("unexpected intent from %s", intent.Wallet.Hex())
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestRunner_SkipsFailedBatches(t *testing.T) {
	h1, h2 := hashN(1), hashN(2)
	stream := &scriptedStream{steps: []func(context.Context, chan<- common.Hash) error{
		func(ctx context.Context, out chan<- common.Hash) error {
			out <- h1
			return errors.New("dropped")
		},
		func(ctx context.Context, out chan<- common.Hash) error {
			out <- h2
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	resolver := &scriptedResolver{respond: func(call int, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
		if call == 0 {
			return nil, errors.New("node unavailable")
		}
		txs := make([]*domain.PendingTransaction, 0, len(hashes))
		for _, h := range hashes {
			txs = append(txs, pendingFrom(whaleAddr, h))
		}
		return txs, nil
	}}

	// Flush well before the reconnect delay so the two hashes cannot share
	// a batch.
	cfg := fastConfig()
	cfg.FlushInterval = time.Millisecond
	cfg.ReconnectBase = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRunner(stream, resolver, trackedRegistry(), &stubDecoder{}, cfg, nil, nil)
	go r.Run(ctx)

	select {
	case intent := <-r.Intents():
		if intent.TxHash != h2 {
			t.Errorf("intent tx = %s, want %s", intent.TxHash.Hex(), h2.Hex())
		}
	case <-time.After(time.Second):
		t.Fatal("intent from the healthy batch never arrived")
	}
}

func TestRunner_ObservesDetectionLatency(t *testing.T) {
	metrics := observability.NewMetrics("ingestion_latency_test")
	stream := &scriptedStream{steps: []func(context.Context, chan<- common.Hash) error{
		func(ctx context.Context, out chan<- common.Hash) error {
			out <- hashN(1)
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	resolver := &scriptedResolver{respond: func(_ int, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
		return []*domain.PendingTransaction{pendingFrom(whaleAddr, hashes[0])}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRunner(stream, resolver, trackedRegistry(), &stubDecoder{}, fastConfig(), metrics, nil)
	go r.Run(ctx)

	select {
	case <-r.Intents():
	case <-time.After(time.Second):
		t.Fatal("no intent emitted")
	}

	// The observation lands right after the intent is delivered.
	deadline := time.After(time.Second)
	for {
		var sample dto.Metric
		if err := metrics.DetectionLatency.Write(&sample); err != nil {
			t.Fatalf("read histogram: %v", err)
		}
		if sample.GetHistogram().GetSampleCount() >= 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("batch handling never observed a detection latency")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunner_DecodeRejectionsDropped(t *testing.T) {
	stream := &scriptedStream{steps: []func(context.Context, chan<- common.Hash) error{
		func(ctx context.Context, out chan<- common.Hash) error {
			out <- hashN(1)
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	resolver := &scriptedResolver{respond: func(_ int, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
		return []*domain.PendingTransaction{pendingFrom(whaleAddr, hashes[0])}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRunner(stream, resolver, trackedRegistry(), &stubDecoder{err: decoder.ErrUnknownSelector}, fastConfig(), nil, nil)
	go r.Run(ctx)

	select {
	case intent := <-r.Intents():
		t.Fatalf("rejected transaction produced intent %+v", intent)
	case <-time.After(50 * time.Millisecond):
	}
}
