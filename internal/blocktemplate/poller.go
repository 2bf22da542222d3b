package blocktemplate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/btcindex/txstratum/internal/stratumv2"
)

// PollInterval is how often the poller checks bitcoind for a new template.
const PollInterval = 5 * time.Second

const maxBackoff = 60 * time.Second

// TemplatePoller periodically fetches a block template from a BitcoinRPC
// and, when the chain tip has moved, converts it with ToJobBlock and
// dispatches it to a Stratum V2 pool's SetTemplate, which is what
// actually reaches every open channel with a NewMiningJob.
type TemplatePoller struct {
	rpc    BitcoinRPC
	pool   *stratumv2.Pool
	logger *zap.Logger

	lastPrevHash string
}

// NewTemplatePoller wires a BitcoinRPC source to a Stratum V2 pool's job
// dispatch.
func NewTemplatePoller(rpc BitcoinRPC, pool *stratumv2.Pool, logger *zap.Logger) *TemplatePoller {
	return &TemplatePoller{rpc: rpc, pool: pool, logger: logger}
}

// Run polls until ctx is canceled, fetching an initial template
// immediately and then on every tick thereafter.
func (p *TemplatePoller) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var consecutiveFailures int
	var lastFailureTime time.Time

	p.poll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if consecutiveFailures > 0 && time.Since(lastFailureTime) < backoffDuration(consecutiveFailures) {
				continue
			}
			if err := p.fetchAndDispatch(ctx); err != nil {
				consecutiveFailures++
				lastFailureTime = time.Now()
				if p.logger != nil {
					p.logger.Warn("blocktemplate: poll failed",
						zap.Error(err),
						zap.Int("consecutive_failures", consecutiveFailures),
						zap.Duration("next_retry", backoffDuration(consecutiveFailures)),
					)
				}
			} else if consecutiveFailures > 0 {
				if p.logger != nil {
					p.logger.Info("blocktemplate: poll recovered", zap.Int("after_failures", consecutiveFailures))
				}
				consecutiveFailures = 0
			}
		}
	}
}

func (p *TemplatePoller) poll() {
	if err := p.fetchAndDispatch(context.Background()); err != nil && p.logger != nil {
		p.logger.Warn("blocktemplate: initial poll failed", zap.Error(err))
	}
}

// fetchAndDispatch fetches a template and, if its previousblockhash has
// changed since the last dispatch, converts and submits it to the pool.
func (p *TemplatePoller) fetchAndDispatch(ctx context.Context) error {
	tmpl, err := p.rpc.GetBlockTemplate(ctx)
	if err != nil {
		return err
	}
	if tmpl.PreviousBlockHash == p.lastPrevHash {
		return nil
	}

	block, err := tmpl.ToJobBlock()
	if err != nil {
		return err
	}

	p.lastPrevHash = tmpl.PreviousBlockHash
	jobID, messages := p.pool.SetTemplate(block)
	if p.logger != nil {
		p.logger.Info("blocktemplate: dispatched new template",
			zap.Uint64("job_id", jobID),
			zap.Int("channels", len(messages)),
			zap.Int64("height", tmpl.Height),
		)
	}
	return nil
}

func backoffDuration(failures int) time.Duration {
	if failures <= 0 {
		return PollInterval
	}
	d := PollInterval
	for i := 1; i < failures; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	return d
}
