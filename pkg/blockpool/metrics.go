package blockpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_pool_blocks_ingested_total",
			Help: "Total number of blocks accepted by process_block, by outcome",
		},
		[]string{"chain", "outcome"}, // outcome: appended, branched, orphaned, duplicate
	)

	forksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainobserver_pool_forks_active",
			Help: "Number of active forks currently tracked",
		},
		[]string{"chain"},
	)

	orphansHeld = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainobserver_pool_orphans_held",
			Help: "Number of orphan blocks currently retained",
		},
		[]string{"chain"},
	)

	reorgsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_pool_reorgs_total",
			Help: "Total number of canonical-fork reorgs emitted",
		},
		[]string{"chain"},
	)

	reorgDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainobserver_pool_reorg_depth_blocks",
			Help:    "Depth of emitted reorgs in blocks rolled back",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"chain"},
	)

	blocksConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainobserver_pool_blocks_confirmed_total",
			Help: "Total number of blocks that crossed the confirmation horizon",
		},
		[]string{"chain"},
	)

	canonicalHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainobserver_pool_canonical_height",
			Help: "Height of the currently elected canonical tip",
		},
		[]string{"chain"},
	)
)

func blockIngestedInc(chainName, outcome string) {
	blocksIngested.WithLabelValues(chainName, outcome).Inc()
}

func forksActiveSet(chainName string, n int) {
	forksActive.WithLabelValues(chainName).Set(float64(n))
}

func orphansHeldSet(chainName string, n int) {
	orphansHeld.WithLabelValues(chainName).Set(float64(n))
}

func reorgDetectedObserve(chainName string, depth int) {
	reorgsDetected.WithLabelValues(chainName).Inc()
	reorgDepth.WithLabelValues(chainName).Observe(float64(depth))
}

func blocksConfirmedInc(chainName string, n int) {
	blocksConfirmed.WithLabelValues(chainName).Add(float64(n))
}

func canonicalHeightSet(chainName string, height uint64) {
	canonicalHeight.WithLabelValues(chainName).Set(float64(height))
}
