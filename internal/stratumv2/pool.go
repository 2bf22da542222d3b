package stratumv2

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/internal/metrics"
	"github.com/btcindex/txstratum/pkg/bitcoin"
)

// ConnState is a connection's position in the setup/configure lifecycle.
type ConnState int

const (
	Opened ConnState = iota
	Configured
	Closed
)

// Connection tracks one miner's endpoint-scoped session.
type Connection struct {
	Endpoint        string
	ProtocolVersion uint16
	Capabilities    []string
	State           ConnState
}

// Channel is a per-miner logical substream carrying jobs and shares.
type Channel struct {
	ChannelID       uint32
	MinerEndpoint   string
	MinDifficulty   uint32
	CurrentJobID    uint64
	HasJob          bool
	SharesSubmitted uint64
	AcceptedShares  uint64
	RejectedShares  uint64
	TotalRewards    uint64
	LastShareTime   time.Time
}

type channelKey struct {
	endpoint  string
	channelID uint32
}

// Pool is the server-side Stratum V2 protocol state machine. All
// mutating operations take the write lock; SessionCount-style
// observers take the read lock (§5: single exclusive-writer guard).
type Pool struct {
	mu sync.RWMutex

	connections     map[string]*Connection
	channels        map[channelKey]*Channel
	jobCounter      uint64
	currentTemplate *bitcoin.Block

	logger *zap.Logger
}

// NewPool constructs an empty pool state machine.
func NewPool(logger *zap.Logger) *Pool {
	return &Pool{
		connections: make(map[string]*Connection),
		channels:    make(map[channelKey]*Channel),
		logger:      logger,
	}
}

// supportedCapabilities is the full set of mining capabilities this
// pool core understands; handle_setup_connection responds with the
// intersection of this set and what the miner offered.
var supportedCapabilities = map[string]bool{
	"mining":          true,
	"version_rolling": true,
}

// HandleSetupConnection implements §4.E transition 1. Setup is refused
// with AlreadyConfigured while the endpoint still holds a Configured
// connection. After Disconnect, the same endpoint can set up again and
// gets a fresh Configured connection; any channels still bound to the
// endpoint are dropped.
func (p *Pool) HandleSetupConnection(msg SetupConnection) (SetupConnectionSuccess, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.connections[msg.Endpoint]; ok && existing.State == Configured {
		return SetupConnectionSuccess{}, apperr.AlreadyConfiguredf("endpoint %q already configured", msg.Endpoint)
	}
	if msg.ProtocolVersion != SupportedProtocolVersion {
		return SetupConnectionSuccess{}, apperr.UnsupportedVersionf("protocol_version %d not supported", msg.ProtocolVersion)
	}

	// Reconnect: drop any channels bound to this endpoint from a prior session.
	for key := range p.channels {
		if key.endpoint == msg.Endpoint {
			delete(p.channels, key)
		}
	}

	var offered []string
	for _, cap := range msg.Capabilities {
		if supportedCapabilities[cap] {
			offered = append(offered, cap)
		}
	}

	p.connections[msg.Endpoint] = &Connection{
		Endpoint:        msg.Endpoint,
		ProtocolVersion: msg.ProtocolVersion,
		Capabilities:    msg.Capabilities,
		State:           Configured,
	}
	metrics.MinersConnected.Set(float64(len(p.connections)))

	return SetupConnectionSuccess{
		SupportedVersions: []uint16{SupportedProtocolVersion},
		Capabilities:      offered,
	}, nil
}

// HandleOpenChannel implements §4.E transition 2.
func (p *Pool) HandleOpenChannel(endpoint string, msg OpenMiningChannel) (OpenMiningChannelSuccess, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.connections[endpoint]
	if !ok || conn.State != Configured {
		return OpenMiningChannelSuccess{}, apperr.MinerNotRegisteredf("endpoint %q has not completed setup", endpoint)
	}

	p.channels[channelKey{endpoint, msg.ChannelID}] = &Channel{
		ChannelID:     msg.ChannelID,
		MinerEndpoint: endpoint,
		MinDifficulty: msg.MinDifficulty,
	}
	metrics.ChannelsOpen.Set(float64(len(p.channels)))

	return OpenMiningChannelSuccess{ChannelID: msg.ChannelID}, nil
}

// SetTemplate implements §4.E transition 3: it assigns a new job_id,
// stores the template, and returns a NewMiningJob for every open
// channel. The channel list is snapshotted under the write lock and
// the messages are built after releasing it, so no network I/O (or
// caller-side work) runs while holding the lock.
func (p *Pool) SetTemplate(block *bitcoin.Block) (jobID uint64, messages []NewMiningJob) {
	p.mu.Lock()
	p.jobCounter++
	jobID = p.jobCounter
	p.currentTemplate = block

	type target struct {
		channelID uint32
		minDiff   uint32
	}
	var targets []target
	for key, ch := range p.channels {
		_ = key
		ch.CurrentJobID = jobID
		ch.HasJob = true
		targets = append(targets, target{channelID: ch.ChannelID, minDiff: ch.MinDifficulty})
	}
	p.mu.Unlock()

	header := block.Header.Serialize()
	for _, t := range targets {
		messages = append(messages, NewMiningJob{
			JobID:          jobID,
			ChannelID:      t.channelID,
			HeaderTemplate: header,
			Target:         difficultyTarget(t.minDiff),
		})
	}
	metrics.JobsDispatched.Add(float64(len(messages)))
	return jobID, messages
}

// difficultyTarget derives a coarse target byte string from a channel's
// min_difficulty. The exact target encoding is implementation-defined
// (§6); this one is stable and monotone (a higher min_difficulty gives a
// numerically smaller big-endian target). It is sent to miners as
// NewMiningJob.Target; SubmitShare does not compare against it.
func difficultyTarget(minDifficulty uint32) []byte {
	target := make([]byte, 8)
	var v uint64
	if minDifficulty == 0 {
		v = ^uint64(0)
	} else {
		v = ^uint64(0) / uint64(minDifficulty)
	}
	for i := 0; i < 8; i++ {
		target[7-i] = byte(v >> (8 * i))
	}
	return target
}

// SubmitShare implements §4.E transition 4. A share referencing a
// job_id other than the channel's current one is rejected as StaleJob
// (§5's cancellation note). The proof-of-work decision itself is made
// by the caller and passed in as valid, since real target comparison
// requires the miner's supplied header/nonce: a share against the
// current job is accepted when valid is true and rejected (without an
// error) when it is false.
func (p *Pool) SubmitShare(endpoint string, msg SubmitShare, valid bool) (SubmitShareResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.channels[channelKey{endpoint, msg.ChannelID}]
	if !ok {
		return SubmitShareResult{}, apperr.UnknownChannelf("channel %d for endpoint %q", msg.ChannelID, endpoint)
	}

	if !ch.HasJob || msg.JobID != ch.CurrentJobID {
		ch.SharesSubmitted++
		ch.RejectedShares++
		metrics.SharesRejected.Inc()
		return SubmitShareResult{Accepted: false, Reason: "stale job"}, apperr.StaleJobf("job %d superseded (current %d)", msg.JobID, ch.CurrentJobID)
	}

	ch.SharesSubmitted++
	if valid {
		ch.AcceptedShares++
		ch.LastShareTime = time.Now()
		metrics.SharesAccepted.Inc()
		return SubmitShareResult{Accepted: true}, nil
	}
	ch.RejectedShares++
	metrics.SharesRejected.Inc()
	return SubmitShareResult{Accepted: false, Reason: "invalid proof of work"}, nil
}

// Disconnect implements §4.E transition 5: removes the connection and
// every channel bound to its endpoint.
func (p *Pool) Disconnect(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.connections, endpoint)
	for key := range p.channels {
		if key.endpoint == endpoint {
			delete(p.channels, key)
		}
	}
	metrics.MinersConnected.Set(float64(len(p.connections)))
	metrics.ChannelsOpen.Set(float64(len(p.channels)))
}

// ConnectionCount returns the number of live connections.
func (p *Pool) ConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}

// ChannelCount returns the number of open channels.
func (p *Pool) ChannelCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.channels)
}

// Channel returns a copy of the channel state for (endpoint, channelID).
func (p *Pool) Channel(endpoint string, channelID uint32) (Channel, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[channelKey{endpoint, channelID}]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}
