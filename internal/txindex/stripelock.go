package txindex

import "sync"

// numStripes controls the granularity of the striped mutex guarding
// optional-view read-modify-write sections. 256 stripes over the key's
// low byte, per §5/§9's explicit guidance.
const numStripes = 256

// stripeLock serializes read-modify-write updates to address_tx_index,
// address_output_index, and value_index so concurrent writers touching
// the same address hash or value bucket don't lose an update. Primary
// views need no such guard (§5: the KV backend already serializes
// single-key operations).
type stripeLock struct {
	mu [numStripes]sync.Mutex
}

func (s *stripeLock) lock(key []byte) {
	s.mu[stripeIndex(key)].Lock()
}

func (s *stripeLock) unlock(key []byte) {
	s.mu[stripeIndex(key)].Unlock()
}

func stripeIndex(key []byte) byte {
	if len(key) == 0 {
		return 0
	}
	return key[len(key)-1]
}
