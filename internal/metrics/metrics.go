package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IndexedTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txindex",
		Name:      "transactions_total",
		Help:      "Number of transactions held in the primary tx_by_hash view.",
	})

	IndexedBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "txindex",
		Name:      "blocks_total",
		Help:      "Number of distinct blocks with at least one indexed transaction.",
	})

	RebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "txindex",
		Name:      "rebuilds_total",
		Help:      "Number of full derived-view rebuilds performed.",
	})

	MinersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stratumv2",
		Name:      "miners_connected",
		Help:      "Number of configured Stratum V2 connections.",
	})

	ChannelsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stratumv2",
		Name:      "channels_open",
		Help:      "Number of open mining channels.",
	})

	SharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratumv2",
		Name:      "shares_accepted_total",
		Help:      "Total valid shares accepted across all channels.",
	})

	SharesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratumv2",
		Name:      "shares_rejected_total",
		Help:      "Total shares rejected, including stale-job resubmissions.",
	})

	JobsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratumv2",
		Name:      "jobs_dispatched_total",
		Help:      "Total NewMiningJob messages sent across all channels.",
	})

	MergeMiningRevenue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mergemining",
		Name:      "revenue_split",
		Help:      "Current total-revenue split by recipient (core, grants, audits, operations).",
	}, []string{"recipient"})

	MergeMiningShares = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mergemining",
		Name:      "shares_submitted_total",
		Help:      "Total shares recorded per secondary chain.",
	}, []string{"chain_id"})
)

func init() {
	prometheus.MustRegister(
		IndexedTransactions,
		IndexedBlocks,
		RebuildsTotal,
		MinersConnected,
		ChannelsOpen,
		SharesAccepted,
		SharesRejected,
		JobsDispatched,
		MergeMiningRevenue,
		MergeMiningShares,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
