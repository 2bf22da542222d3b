package stratumv2

import (
	"testing"

	"go.uber.org/zap"

	"github.com/btcindex/txstratum/internal/apperr"
	"github.com/btcindex/txstratum/pkg/bitcoin"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// Property 9 / Scenario S5.
func TestScenarioS5(t *testing.T) {
	pool := NewPool(testLogger())

	if _, err := pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 1, RequestID: 1, MinDifficulty: 1}); !apperr.Is(err, apperr.MinerNotRegistered) {
		t.Fatalf("open channel before setup: err=%v, want MinerNotRegistered", err)
	}

	success, err := pool.HandleSetupConnection(SetupConnection{
		ProtocolVersion: 2,
		Endpoint:        "m",
		Capabilities:    []string{"mining"},
	})
	if err != nil {
		t.Fatalf("HandleSetupConnection: %v", err)
	}
	if len(success.SupportedVersions) != 1 || success.SupportedVersions[0] != 2 {
		t.Errorf("SupportedVersions = %v, want [2]", success.SupportedVersions)
	}

	openResult, err := pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 1, RequestID: 1, MinDifficulty: 1})
	if err != nil {
		t.Fatalf("HandleOpenChannel: %v", err)
	}
	if openResult.ChannelID != 1 {
		t.Errorf("ChannelID = %d, want 1", openResult.ChannelID)
	}
}

func TestSetupConnectionUnsupportedVersion(t *testing.T) {
	pool := NewPool(testLogger())
	_, err := pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 1, Endpoint: "m"})
	if !apperr.Is(err, apperr.UnsupportedVersion) {
		t.Fatalf("err=%v, want UnsupportedVersion", err)
	}
}

func TestDoubleSetupRejectedThenReconnectResets(t *testing.T) {
	pool := NewPool(testLogger())
	if _, err := pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"}); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	if _, err := pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"}); !apperr.Is(err, apperr.AlreadyConfigured) {
		t.Fatalf("second setup while configured: err=%v, want AlreadyConfigured", err)
	}

	if _, err := pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 5, MinDifficulty: 1}); err != nil {
		t.Fatalf("open channel: %v", err)
	}
	if pool.ChannelCount() != 1 {
		t.Fatalf("ChannelCount = %d, want 1", pool.ChannelCount())
	}

	pool.Disconnect("m")
	// Reconnect after disconnect: setup succeeds again and the old
	// channel is gone.
	if _, err := pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"}); err != nil {
		t.Fatalf("reconnect setup: %v", err)
	}
	if pool.ChannelCount() != 0 {
		t.Fatalf("ChannelCount after reconnect = %d, want 0 (old channels dropped)", pool.ChannelCount())
	}
}

func TestSetTemplateDispatchesToOpenChannels(t *testing.T) {
	pool := NewPool(testLogger())
	if _, err := pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m1"}); err != nil {
		t.Fatalf("setup m1: %v", err)
	}
	if _, err := pool.HandleOpenChannel("m1", OpenMiningChannel{ChannelID: 1, MinDifficulty: 1}); err != nil {
		t.Fatalf("open channel m1: %v", err)
	}

	block := &bitcoin.Block{Header: bitcoin.BlockHeader{Version: 1}}
	jobID, messages := pool.SetTemplate(block)
	if jobID != 1 {
		t.Errorf("jobID = %d, want 1", jobID)
	}
	if len(messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(messages))
	}
	if messages[0].ChannelID != 1 || messages[0].JobID != 1 {
		t.Errorf("message = %+v", messages[0])
	}

	// job_id is a single monotone counter across all channels.
	jobID2, _ := pool.SetTemplate(block)
	if jobID2 != 2 {
		t.Errorf("second jobID = %d, want 2", jobID2)
	}
}

func TestSubmitShareAcceptAndReject(t *testing.T) {
	pool := NewPool(testLogger())
	pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"})
	pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 1, MinDifficulty: 1})
	jobID, _ := pool.SetTemplate(&bitcoin.Block{})

	result, err := pool.SubmitShare("m", SubmitShare{ChannelID: 1, JobID: jobID, Nonce: 1}, true)
	if err != nil || !result.Accepted {
		t.Fatalf("accepted share: result=%+v err=%v", result, err)
	}

	result, err = pool.SubmitShare("m", SubmitShare{ChannelID: 1, JobID: jobID, Nonce: 2}, false)
	if err != nil || result.Accepted {
		t.Fatalf("rejected share should not error and Accepted=false: result=%+v err=%v", result, err)
	}

	ch, ok := pool.Channel("m", 1)
	if !ok {
		t.Fatal("channel not found")
	}
	if ch.AcceptedShares != 1 || ch.RejectedShares != 1 || ch.SharesSubmitted != 2 {
		t.Errorf("channel counters = %+v", ch)
	}
}

func TestSubmitShareStaleJob(t *testing.T) {
	pool := NewPool(testLogger())
	pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"})
	pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 1, MinDifficulty: 1})
	pool.SetTemplate(&bitcoin.Block{})
	pool.SetTemplate(&bitcoin.Block{}) // job_id now 2

	_, err := pool.SubmitShare("m", SubmitShare{ChannelID: 1, JobID: 1, Nonce: 1}, true)
	if !apperr.Is(err, apperr.StaleJob) {
		t.Fatalf("err=%v, want StaleJob", err)
	}
}

func TestSubmitShareUnknownChannel(t *testing.T) {
	pool := NewPool(testLogger())
	_, err := pool.SubmitShare("m", SubmitShare{ChannelID: 99, JobID: 1}, true)
	if !apperr.Is(err, apperr.UnknownChannel) {
		t.Fatalf("err=%v, want UnknownChannel", err)
	}
}

func TestDisconnectRemovesChannels(t *testing.T) {
	pool := NewPool(testLogger())
	pool.HandleSetupConnection(SetupConnection{ProtocolVersion: 2, Endpoint: "m"})
	pool.HandleOpenChannel("m", OpenMiningChannel{ChannelID: 1, MinDifficulty: 1})

	pool.Disconnect("m")

	if pool.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount after disconnect = %d, want 0", pool.ConnectionCount())
	}
	if pool.ChannelCount() != 0 {
		t.Errorf("ChannelCount after disconnect = %d, want 0", pool.ChannelCount())
	}
}
