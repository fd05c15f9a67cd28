package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config sizes the pool
type Config struct {
	Size int `mapstructure:"size"`
	// ExpiryDuration releases idle workers after this long
	ExpiryDuration time.Duration `mapstructure:"expiry_duration"`
}

func DefaultConfig() *Config {
	return &Config{
		Size:           16,
		ExpiryDuration: time.Minute,
	}
}

// Pool bounds how many tasks run at once across all callers
type Pool struct {
	pool   *ants.Pool
	logger *logger.Logger
}

func New(cfg *Config, log *logger.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("workerpool: size must be > 0, got %d", cfg.Size)
	}
	if log == nil {
		log = logger.NewNop()
	}

	p, err := ants.NewPool(cfg.Size,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithPanicHandler(func(r interface{}) {
			log.Error("worker pool task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("workerpool: %w", err)
	}
	return &Pool{pool: p, logger: log}, nil
}

// Run calls task for 0..n-1 on the pool and waits for all of them. The
// first error cancels the context passed to the remaining tasks and is
// returned.
func (p *Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() {
			first = err
			cancel()
		})
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := task(ctx, i); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPoolClosed
			}
			fail(err)
			break
		}
	}

	wg.Wait()
	return first
}

// Running returns the number of busy workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool; later Run calls fail with ErrPoolClosed
func (p *Pool) Release() {
	p.pool.Release()
}
