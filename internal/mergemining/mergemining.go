// Package mergemining coordinates secondary-chain channel lifecycle,
// job tracking, share/reward accounting, and revenue-split accounting
// for Stratum V2 merge mining.
package mergemining

import (
	"sort"
	"sync"
	"time"

	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/internal/metrics"
)

// SecondaryChain is a chain the coordinator knows about but may or may
// not have enabled.
type SecondaryChain struct {
	ChainID   string
	ChainName string
	Enabled   bool
}

// MergeChannel mirrors Channel's shape for a secondary chain: a job and
// accounting state scoped to one enabled chain.
type MergeChannel struct {
	ChainID        string
	ChannelID      uint32
	CurrentJobID   uint64
	HasJob         bool
	SharesSubmitted uint64
	TotalRewards   uint64
	LastShareTime  time.Time
}

// ChainStats is a read-only snapshot of a chain's merge-mining state,
// returned by GetChainStats.
type ChainStats struct {
	ChainID         string
	ChannelID       uint32
	CurrentJobID    uint64
	HasJob          bool
	SharesSubmitted uint64
	TotalRewards    uint64
}

// RevenueSplit is the fixed rational split of total rewards applied by
// GetTotalRevenueDistribution: core 60%, grants 25%, audits 10%,
// operations 5%, computed with floor division and the remainder
// assigned to core so the four parts always sum exactly to the total.
type RevenueSplit struct {
	Core       uint64
	Grants     uint64
	Audits     uint64
	Operations uint64
}

// Coordinator tracks the configured set of secondary chains, which are
// enabled, and their merge-mining channels.
type Coordinator struct {
	mu sync.RWMutex

	chains        []SecondaryChain
	chainIndex    map[string]int
	enabled       map[string]bool
	mergeChannels map[string]*MergeChannel
}

// NewCoordinator configures a coordinator with a fixed list of known
// chains, all initially disabled.
func NewCoordinator(chains []SecondaryChain) *Coordinator {
	index := make(map[string]int, len(chains))
	for i, c := range chains {
		index[c.ChainID] = i
	}
	return &Coordinator{
		chains:        chains,
		chainIndex:    index,
		enabled:       make(map[string]bool),
		mergeChannels: make(map[string]*MergeChannel),
	}
}

// EnableChain marks a configured chain enabled. Idempotent; fails
// UnknownChain if chainID was not in the configured list.
func (c *Coordinator) EnableChain(chainID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.chainIndex[chainID]; !ok {
		return apperr.UnknownChainf("chain %q not configured", chainID)
	}
	c.enabled[chainID] = true
	return nil
}

// GetEnabledChains returns the chain IDs currently enabled.
func (c *Coordinator) GetEnabledChains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.enabled))
	for id, on := range c.enabled {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CreateChannel opens a merge channel for an enabled chain. Fails
// ChainNotEnabled if the chain isn't enabled, ChannelExists on
// duplicate.
func (c *Coordinator) CreateChannel(chainID string, channelID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled[chainID] {
		return apperr.ChainNotEnabledf("chain %q not enabled", chainID)
	}
	if _, exists := c.mergeChannels[chainID]; exists {
		return apperr.ChannelExistsf("merge channel for chain %q already exists", chainID)
	}
	c.mergeChannels[chainID] = &MergeChannel{ChainID: chainID, ChannelID: channelID}
	return nil
}

// GetChannel returns a copy of the merge channel for chainID.
func (c *Coordinator) GetChannel(chainID string) (MergeChannel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.mergeChannels[chainID]
	if !ok {
		return MergeChannel{}, false
	}
	return *ch, true
}

// GetAllChannels returns a copy of every open merge channel.
func (c *Coordinator) GetAllChannels() []MergeChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]MergeChannel, 0, len(c.mergeChannels))
	for _, ch := range c.mergeChannels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// UpdateJob sets the current job id for a chain's merge channel.
func (c *Coordinator) UpdateJob(chainID string, jobID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.mergeChannels[chainID]
	if !ok {
		return apperr.ChannelMissingf("no merge channel for chain %q", chainID)
	}
	ch.CurrentJobID = jobID
	ch.HasJob = true
	return nil
}

// RecordShare adds n to the chain's shares_submitted counter.
func (c *Coordinator) RecordShare(chainID string, n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.mergeChannels[chainID]
	if !ok {
		return apperr.ChannelMissingf("no merge channel for chain %q", chainID)
	}
	ch.SharesSubmitted += n
	ch.LastShareTime = time.Now()
	metrics.MergeMiningShares.WithLabelValues(chainID).Add(float64(n))
	return nil
}

// RecordReward adds amount to the chain's total_rewards counter.
func (c *Coordinator) RecordReward(chainID string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.mergeChannels[chainID]
	if !ok {
		return apperr.ChannelMissingf("no merge channel for chain %q", chainID)
	}
	ch.TotalRewards += amount
	return nil
}

// GetChainStats returns a read-only snapshot of a chain's merge-mining
// state.
func (c *Coordinator) GetChainStats(chainID string) (ChainStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok := c.mergeChannels[chainID]
	if !ok {
		return ChainStats{}, false
	}
	return ChainStats{
		ChainID:         ch.ChainID,
		ChannelID:       ch.ChannelID,
		CurrentJobID:    ch.CurrentJobID,
		HasJob:          ch.HasJob,
		SharesSubmitted: ch.SharesSubmitted,
		TotalRewards:    ch.TotalRewards,
	}, true
}

// GetTotalRevenueDistribution sums total_rewards across every merge
// channel and applies the fixed 60/25/10/5 split using floor division,
// assigning the rounding remainder to core so the four parts always
// sum exactly to the total (property 8).
func (c *Coordinator) GetTotalRevenueDistribution() RevenueSplit {
	c.mu.RLock()
	var total uint64
	for _, ch := range c.mergeChannels {
		total += ch.TotalRewards
	}
	c.mu.RUnlock()

	split := SplitRevenue(total)
	metrics.MergeMiningRevenue.WithLabelValues("core").Set(float64(split.Core))
	metrics.MergeMiningRevenue.WithLabelValues("grants").Set(float64(split.Grants))
	metrics.MergeMiningRevenue.WithLabelValues("audits").Set(float64(split.Audits))
	metrics.MergeMiningRevenue.WithLabelValues("operations").Set(float64(split.Operations))
	return split
}

// SplitRevenue applies the fixed rational split to an arbitrary total,
// independent of any coordinator state.
func SplitRevenue(total uint64) RevenueSplit {
	grants := total * 25 / 100
	audits := total * 10 / 100
	operations := total * 5 / 100
	core := total - grants - audits - operations
	return RevenueSplit{Core: core, Grants: grants, Audits: audits, Operations: operations}
}
