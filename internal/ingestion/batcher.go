package ingestion

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Batcher coalesces the hash firehose into bounded RPC batches: a batch
// ships when it is full or when the oldest hash in it has waited out the
// flush interval, whichever comes first.
type Batcher struct {
	size     int
	interval time.Duration
}

// NewBatcher creates a batcher. size and interval must be positive.
func NewBatcher(size int, interval time.Duration) *Batcher {
	return &Batcher{size: size, interval: interval}
}

// Run moves hashes from in to out in batches until ctx is cancelled or in
// is closed. A trailing partial batch is flushed before returning. The out
// channel is not closed; the caller owns it.
func (b *Batcher) Run(ctx context.Context, in <-chan common.Hash, out chan<- []common.Hash) error {
	batch := make([]common.Hash, 0, b.size)
	timer := time.NewTimer(b.interval)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false
	defer timer.Stop()

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		send := batch
		batch = make([]common.Hash, 0, b.size)
		if timerActive {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timerActive = false
		}
		select {
		case out <- send:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case hash, ok := <-in:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, hash)
			if len(batch) >= b.size {
				if !flush() {
					return ctx.Err()
				}
				continue
			}
			if !timerActive {
				timer.Reset(b.interval)
				timerActive = true
			}

		case <-timer.C:
			timerActive = false
			if !flush() {
				return ctx.Err()
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
