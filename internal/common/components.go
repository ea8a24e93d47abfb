package common

const (
	ComponentBlockPoolL1     = "blockpool-l1"
	ComponentBlockPoolL2     = "blockpool-l2"
	ComponentObserver        = "observer"
	ComponentPredicateEngine = "predicate-engine"
	ComponentDispatcher      = "dispatcher"
	ComponentAPI             = "api"
	ComponentMetrics         = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentBlockPoolL1:     {},
	ComponentBlockPoolL2:     {},
	ComponentObserver:        {},
	ComponentPredicateEngine: {},
	ComponentDispatcher:      {},
	ComponentAPI:             {},
	ComponentMetrics:         {},
}
