// Package validation decides whether a token is safe enough to mirror into.
// Checks are layered by cost: the static blacklist is consulted before the
// cache, and the cache before any network call, so known-bad tokens never
// cost an API request.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alpha-mirror/internal/observability"
)

// erc20 function selectors used by the on-chain checks.
var (
	selOwner    = []byte{0x8d, 0xa5, 0xcb, 0x5b} // owner()
	selTransfer = []byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
)

var deadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// nameDenylist rejects tokens whose verified contract name advertises what
// they are.
var nameDenylist = []string{"test", "scam", "honeypot", "rug", "fake", "airdrop"}

// sourceDenylist rejects tokens whose verified source carries owner-side
// control over holders: pausing, mint-on-demand, per-wallet blocking or
// adjustable taxes.
var sourceDenylist = []string{
	"function pause(",
	"function mint(",
	"blacklist(",
	"setfee(",
	"settax(",
	"maxtxamount",
}

// MetadataClient provides contract verification metadata.
type MetadataClient interface {
	ContractSource(ctx context.Context, address string) (*ContractSource, error)
}

// LiquidityClient reports pooled liquidity in USD.
type LiquidityClient interface {
	TokenLiquidity(ctx context.Context, address string) (float64, error)
}

// HoneypotChecker answers whether an external simulator flags the token.
type HoneypotChecker interface {
	IsHoneypot(ctx context.Context, address string) (bool, error)
}

// ChainCaller executes read-only contract calls.
type ChainCaller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	CallFrom(ctx context.Context, from, to common.Address, data []byte) ([]byte, error)
}

// Result is a cached validation verdict.
type Result struct {
	Safe   bool
	Reason string // set when Safe is false
}

// Options tune validator policy.
type Options struct {
	MinLiquidityUSD float64
	CacheCapacity   int
	// Fail-open switches for flaky external dependencies.
	AssumeSafeOnHoneypotError   bool
	AssumeRenouncedWithoutOwner bool
	// Blacklist entries fail immediately without touching the network.
	Blacklist []common.Address
	// WalletAddress is the sender used for the simulated transfer.
	WalletAddress common.Address
}

// Validator runs the token safety pipeline.
type Validator struct {
	metadata  MetadataClient
	liquidity LiquidityClient
	honeypot  HoneypotChecker
	chain     ChainCaller
	opts    Options
	cache   *lru.Cache[common.Address, Result]
	logger  *zap.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	blacklist map[common.Address]struct{}
}

// New creates a validator. CacheCapacity must be positive.
func New(metadata MetadataClient, liquidity LiquidityClient, honeypot HoneypotChecker, chain ChainCaller, opts Options, logger *zap.Logger) (*Validator, error) {
	if opts.CacheCapacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", opts.CacheCapacity)
	}
	cache, err := lru.New[common.Address, Result](opts.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("create validation cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	blacklist := make(map[common.Address]struct{}, len(opts.Blacklist))
	for _, addr := range opts.Blacklist {
		blacklist[addr] = struct{}{}
	}
	return &Validator{
		metadata:  metadata,
		liquidity: liquidity,
		honeypot:  honeypot,
		chain:     chain,
		opts:      opts,
		blacklist: blacklist,
		cache:     cache,
		logger:    logger,
	}, nil
}

// Instrument attaches Prometheus metrics; verdicts reached before this call
// are simply not observed.
func (v *Validator) Instrument(m *observability.Metrics) {
	v.metrics = m
}

// AddToBlacklist bans token permanently. Idempotent. Any cached safe
// verdict for the token is dropped so the ban takes effect immediately.
func (v *Validator) AddToBlacklist(token common.Address) {
	v.mu.Lock()
	v.blacklist[token] = struct{}{}
	v.mu.Unlock()
	v.cache.Remove(token)
}

// ImportBlacklist merges a JSON array of hex addresses from path into the
// blacklist and returns the number of new entries. Existing entries stay;
// nothing is ever removed.
func (v *Validator) ImportBlacklist(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read blacklist %s: %w", path, err)
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parse blacklist %s: %w", path, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	added := 0
	for _, entry := range entries {
		addr := common.HexToAddress(entry)
		if _, known := v.blacklist[addr]; known {
			continue
		}
		v.blacklist[addr] = struct{}{}
		added++
	}
	return added, nil
}

func (v *Validator) blacklisted(token common.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, banned := v.blacklist[token]
	return banned
}

// Validate runs all safety checks for token. Verdicts are memoized; repeated
// intents for the same token cost one pipeline run. The error return is
// reserved for context cancellation; check failures come back as an unsafe
// Result with a reason.
func (v *Validator) Validate(ctx context.Context, token common.Address) (Result, error) {
	if v.blacklisted(token) {
		if v.metrics != nil {
			v.metrics.ValidationRejected.WithLabelValues("blacklist").Inc()
		}
		return Result{Safe: false, Reason: "blacklisted"}, nil
	}
	if cached, ok := v.cache.Get(token); ok {
		if v.metrics != nil {
			v.metrics.ValidationCacheHits.Inc()
		}
		return cached, nil
	}

	if v.metrics != nil {
		v.metrics.ValidationsRun.Inc()
	}
	check, result := v.runChecks(ctx, token)
	if ctx.Err() != nil {
		// Do not cache a verdict cut short by shutdown.
		return Result{}, ctx.Err()
	}
	v.cache.Add(token, result)

	if !result.Safe {
		if v.metrics != nil {
			v.metrics.ValidationRejected.WithLabelValues(check).Inc()
		}
		v.logger.Info("token rejected",
			zap.String("token", token.Hex()),
			zap.String("reason", result.Reason))
	}
	return result, nil
}

// checkError tags a rejection with the check that produced it.
type checkError struct {
	check string
	err   error
}

func (e *checkError) Error() string { return e.err.Error() }
func (e *checkError) Unwrap() error { return e.err }

// runChecks returns the name of the failing check alongside the verdict; the
// name is empty when the token passes.
func (v *Validator) runChecks(ctx context.Context, token common.Address) (string, Result) {
	g, ctx := errgroup.WithContext(ctx)
	run := func(check string, fn func(context.Context, common.Address) error) {
		g.Go(func() error {
			if err := fn(ctx, token); err != nil {
				return &checkError{check: check, err: err}
			}
			return nil
		})
	}

	run("source", v.checkSourceAndName)
	run("liquidity", v.checkLiquidity)
	run("owner", v.checkOwnerRenounced)
	run("transfer", v.checkTransferable)
	run("honeypot", v.checkHoneypot)

	if err := g.Wait(); err != nil {
		check := "unknown"
		var ce *checkError
		if errors.As(err, &ce) {
			check = ce.check
		}
		return check, Result{Safe: false, Reason: err.Error()}
	}
	return "", Result{Safe: true}
}

func (v *Validator) checkSourceAndName(ctx context.Context, token common.Address) error {
	source, err := v.metadata.ContractSource(ctx, token.Hex())
	if err != nil {
		return fmt.Errorf("source lookup failed: %v", err)
	}
	if !source.Verified {
		return fmt.Errorf("contract source not verified")
	}
	name := strings.ToLower(source.ContractName)
	for _, word := range nameDenylist {
		if strings.Contains(name, word) {
			return fmt.Errorf("contract name %q contains %q", source.ContractName, word)
		}
	}
	code := strings.ToLower(source.SourceCode)
	for _, pattern := range sourceDenylist {
		if strings.Contains(code, pattern) {
			return fmt.Errorf("contract source contains %q", pattern)
		}
	}
	return nil
}

func (v *Validator) checkLiquidity(ctx context.Context, token common.Address) error {
	liquidity, err := v.liquidity.TokenLiquidity(ctx, token.Hex())
	if err != nil {
		return fmt.Errorf("liquidity lookup failed: %v", err)
	}
	if liquidity < v.opts.MinLiquidityUSD {
		return fmt.Errorf("liquidity $%.0f below $%.0f floor", liquidity, v.opts.MinLiquidityUSD)
	}
	return nil
}

func (v *Validator) checkOwnerRenounced(ctx context.Context, token common.Address) error {
	ret, err := v.chain.Call(ctx, token, selOwner)
	if err != nil {
		// No owner() function at all is common for renounced or
		// ownerless tokens.
		if v.opts.AssumeRenouncedWithoutOwner {
			return nil
		}
		return fmt.Errorf("owner lookup failed: %v", err)
	}
	if len(ret) < 32 {
		if v.opts.AssumeRenouncedWithoutOwner {
			return nil
		}
		return fmt.Errorf("owner returned %d bytes", len(ret))
	}
	owner := common.BytesToAddress(ret[12:32])
	if owner != (common.Address{}) && owner != deadAddress {
		return fmt.Errorf("owner not renounced: %s", owner.Hex())
	}
	return nil
}

func (v *Validator) checkTransferable(ctx context.Context, token common.Address) error {
	// Zero-amount transfer to our own wallet; a revert here means transfers
	// are gated.
	data := make([]byte, 0, 4+64)
	data = append(data, selTransfer...)
	data = append(data, common.LeftPadBytes(v.opts.WalletAddress.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(0).Bytes(), 32)...)

	if _, err := v.chain.CallFrom(ctx, v.opts.WalletAddress, token, data); err != nil {
		return fmt.Errorf("simulated transfer reverted: %v", err)
	}
	return nil
}

func (v *Validator) checkHoneypot(ctx context.Context, token common.Address) error {
	flagged, err := v.honeypot.IsHoneypot(ctx, token.Hex())
	if err != nil {
		if v.opts.AssumeSafeOnHoneypotError {
			v.logger.Warn("honeypot service unavailable, assuming safe",
				zap.String("token", token.Hex()), zap.Error(err))
			return nil
		}
		return fmt.Errorf("honeypot check failed: %v", err)
	}
	if flagged {
		return fmt.Errorf("flagged as honeypot")
	}
	return nil
}
