package activity

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// LogClient is the node surface the watcher needs. *ethclient.Client
// satisfies it.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Feed is a bounded, newest-first buffer of decoded events.
type Feed struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 200
	}
	return &Feed{max: max}
}

func (f *Feed) Add(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]Event{ev}, f.events...)
	if len(f.events) > f.max {
		f.events = f.events[:f.max]
	}
}

func (f *Feed) Recent(n int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n <= 0 || n > len(f.events) {
		n = len(f.events)
	}
	out := make([]Event, n)
	copy(out, f.events[:n])
	return out
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// DepthObserver receives the feed depth after each batch; the metrics
// gauge implements it.
type DepthObserver interface {
	SetActivityFeedDepth(depth int)
}

type WatcherConfig struct {
	Contracts    []common.Address
	PollInterval time.Duration
	Lookback     uint64
}

// Watcher polls the node for logs emitted by the platform contracts and
// publishes decoded events to the feed.
type Watcher struct {
	client  LogClient
	decoder *Decoder
	feed    *Feed
	cfg     WatcherConfig
	logger  *slog.Logger
	depth   DepthObserver
}

func NewWatcher(client LogClient, decoder *Decoder, feed *Feed, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{client: client, decoder: decoder, feed: feed, cfg: cfg, logger: logger}
}

func (w *Watcher) SetDepthObserver(obs DepthObserver) {
	w.depth = obs
}

// Run blocks until ctx is cancelled. Log fetching and decoding run as
// separate stages connected by a channel.
func (w *Watcher) Run(ctx context.Context) error {
	logs := make(chan types.Log, 256)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(logs)
		return w.fetch(gctx, logs)
	})
	g.Go(func() error {
		return w.collect(gctx, logs)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Watcher) fetch(ctx context.Context, out chan<- types.Log) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var from uint64
	head, err := w.client.BlockNumber(ctx)
	if err == nil {
		if head > w.cfg.Lookback {
			from = head - w.cfg.Lookback
		}
	} else {
		w.logger.Warn("head lookup failed, starting from genesis window", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}

		head, err := w.client.BlockNumber(ctx)
		if err != nil {
			w.logger.Warn("head lookup failed", "error", err)
			continue
		}
		if head < from {
			continue
		}
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(head),
			Addresses: w.cfg.Contracts,
		}
		batch, err := w.client.FilterLogs(ctx, q)
		if err != nil {
			w.logger.Warn("log fetch failed", "from", from, "to", head, "error", err)
			continue
		}
		for _, l := range batch {
			select {
			case <-ctx.Done():
				return context.Canceled
			case out <- l:
			}
		}
		from = head + 1
	}
}

func (w *Watcher) collect(ctx context.Context, in <-chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case l, ok := <-in:
			if !ok {
				return nil
			}
			ev := w.decoder.Decode(l)
			w.feed.Add(ev)
			if w.depth != nil {
				w.depth.SetActivityFeedDepth(w.feed.Len())
			}
		}
	}
}
