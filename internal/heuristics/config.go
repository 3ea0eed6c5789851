package heuristics

import "time"

// Engine configuration
//
// Every threshold, window and weight used by the clustering, classification,
// association and tracing heuristics lives here so that callers (and tests)
// can run the engine under different parameter regimes. DefaultConfig()
// returns the production values.

// Config groups the per-stage configuration blocks
type Config struct {
	Grouping    GroupingConfig    `json:"grouping"`
	Merge       MergeConfig       `json:"merge"`
	Anomaly     AnomalyConfig     `json:"anomaly"`
	Association AssociationConfig `json:"association"`
	Trace       TraceConfig       `json:"trace"`
}

// GroupingConfig controls the three candidate-cluster passes
type GroupingConfig struct {
	MinTransactions    int           `json:"minTransactions"`    // Below this, no clustering at all (default: 3)
	TimeWindow         time.Duration `json:"timeWindow"`         // Temporal run length measured from run start (default: 24h)
	MinClusterSize     int           `json:"minClusterSize"`     // Temporal, amount and type clusters (default: 3)
	MinPairClusterSize int           `json:"minPairClusterSize"` // Repeated (source,destination) clusters (default: 2)
	AmountTolerance    float64       `json:"amountTolerance"`    // Relative difference to join an amount bucket (default: 0.05)

	TemporalScore float64 `json:"temporalScore"` // 0.8
	AmountScore   float64 `json:"amountScore"`   // 0.75
	TypeScore     float64 `json:"typeScore"`     // 0.7
	PairScore     float64 `json:"pairScore"`     // 0.8
	CircularScore float64 `json:"circularScore"` // 0.9
}

// MergeConfig controls the Jaccard merger
type MergeConfig struct {
	SimilarityThreshold float64 `json:"similarityThreshold"` // default: 0.7
}

// AnomalyConfig controls the cluster classifier
type AnomalyConfig struct {
	MinSamples            int     `json:"minSamples"`            // Amounts/timestamps needed for the CV checks (default: 3)
	AmountCVThreshold     float64 `json:"amountCvThreshold"`     // stddev/mean above this is unusual (default: 1.5)
	TimingCVThreshold     float64 `json:"timingCvThreshold"`     // gap stddev/mean below this is unusual (default: 0.1)
	DirectionalMinTxs     int     `json:"directionalMinTxs"`     // default: 5
	WashMinTxs            int     `json:"washMinTxs"`            // strictly more than this many txs (default: 5)
	WashMaxCounterparties int     `json:"washMaxCounterparties"` // default: 2
	ConcentrationRatio    float64 `json:"concentrationRatio"`    // strictly above this share (default: 0.7)
}

// AssociationConfig holds the association scoring weights
type AssociationConfig struct {
	NormalWeight       float64 `json:"normalWeight"`       // 0.2
	UnusualWeight      float64 `json:"unusualWeight"`      // 0.5
	SuspiciousWeight   float64 `json:"suspiciousWeight"`   // 0.8
	FrequentTxs        int     `json:"frequentTxs"`        // 5
	FrequentBonus      float64 `json:"frequentBonus"`      // 0.3
	RepeatedTxs        int     `json:"repeatedTxs"`        // 3
	RepeatedBonus      float64 `json:"repeatedBonus"`      // 0.1
	ReportingThreshold float64 `json:"reportingThreshold"` // callers typically report above this (0.5)
}

// TraceConfig controls provenance tracing
type TraceConfig struct {
	DefaultDepth  int     `json:"defaultDepth"`  // default: 3
	MaxDepth      int     `json:"maxDepth"`      // hard bound (default: 5)
	HopDecay      float64 `json:"hopDecay"`      // confidence lost per hop (default: 0.2)
	MinConfidence float64 `json:"minConfidence"` // confidence floor (default: 0.1)
}

// DefaultConfig returns the production heuristic parameters
func DefaultConfig() Config {
	return Config{
		Grouping:    DefaultGroupingConfig(),
		Merge:       MergeConfig{SimilarityThreshold: 0.7},
		Anomaly:     DefaultAnomalyConfig(),
		Association: DefaultAssociationConfig(),
		Trace:       DefaultTraceConfig(),
	}
}

// DefaultGroupingConfig returns the grouping defaults
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{
		MinTransactions:    3,
		TimeWindow:         24 * time.Hour,
		MinClusterSize:     3,
		MinPairClusterSize: 2,
		AmountTolerance:    0.05,
		TemporalScore:      0.8,
		AmountScore:        0.75,
		TypeScore:          0.7,
		PairScore:          0.8,
		CircularScore:      0.9,
	}
}

// DefaultAnomalyConfig returns the classifier defaults
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MinSamples:            3,
		AmountCVThreshold:     1.5,
		TimingCVThreshold:     0.1,
		DirectionalMinTxs:     5,
		WashMinTxs:            5,
		WashMaxCounterparties: 2,
		ConcentrationRatio:    0.7,
	}
}

// DefaultAssociationConfig returns the association weights
func DefaultAssociationConfig() AssociationConfig {
	return AssociationConfig{
		NormalWeight:       0.2,
		UnusualWeight:      0.5,
		SuspiciousWeight:   0.8,
		FrequentTxs:        5,
		FrequentBonus:      0.3,
		RepeatedTxs:        3,
		RepeatedBonus:      0.1,
		ReportingThreshold: 0.5,
	}
}

// DefaultTraceConfig returns sensible defaults for provenance tracing
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		DefaultDepth:  3,
		MaxDepth:      5,
		HopDecay:      0.2,
		MinConfidence: 0.1,
	}
}

// ClampDepth bounds a requested trace depth to [1, MaxDepth]
func (c TraceConfig) ClampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > c.MaxDepth {
		return c.MaxDepth
	}
	return depth
}
