// Package stratumv2 implements the server-side Stratum V2 mining
// protocol: connection setup, channel open, job dispatch, and share
// accounting, framed over internal/tlv and CBOR-encoded payloads.
package stratumv2

// Message tags identify a TLV frame's payload type.
const (
	TagSetupConnection        uint16 = 1
	TagSetupConnectionSuccess uint16 = 2
	TagOpenMiningChannel      uint16 = 3
	TagOpenChannelSuccess     uint16 = 4
	TagNewMiningJob           uint16 = 5
	TagSubmitShare            uint16 = 6
	TagSubmitShareResult      uint16 = 7
)

// SupportedProtocolVersion is the only protocol_version this pool core
// accepts (§4.E transition 1).
const SupportedProtocolVersion = 2

type SetupConnection struct {
	ProtocolVersion uint16   `cbor:"1,keyasint"`
	Endpoint        string   `cbor:"2,keyasint"`
	Capabilities    []string `cbor:"3,keyasint"`
}

type SetupConnectionSuccess struct {
	SupportedVersions []uint16 `cbor:"1,keyasint"`
	Capabilities      []string `cbor:"2,keyasint"`
}

type OpenMiningChannel struct {
	ChannelID     uint32 `cbor:"1,keyasint"`
	RequestID     uint32 `cbor:"2,keyasint"`
	MinDifficulty uint32 `cbor:"3,keyasint"`
}

type OpenMiningChannelSuccess struct {
	ChannelID uint32 `cbor:"1,keyasint"`
}

type NewMiningJob struct {
	JobID          uint64 `cbor:"1,keyasint"`
	ChannelID      uint32 `cbor:"2,keyasint"`
	HeaderTemplate []byte `cbor:"3,keyasint"`
	Target         []byte `cbor:"4,keyasint"`
}

type SubmitShare struct {
	ChannelID uint32 `cbor:"1,keyasint"`
	JobID     uint64 `cbor:"2,keyasint"`
	Nonce     uint32 `cbor:"3,keyasint"`
}

type SubmitShareResult struct {
	Accepted bool   `cbor:"1,keyasint"`
	Reason   string `cbor:"2,keyasint"`
}
