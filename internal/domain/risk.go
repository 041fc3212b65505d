package domain

import (
	"encoding/json"
	"math"
	"time"
)

// RiskLevel is the band a fused risk score falls into.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Score band lower bounds on the 0-100 scale.
const (
	CriticalThreshold = 70.0
	HighThreshold     = 50.0
	MediumThreshold   = 30.0
)

// LevelForScore maps a 0-100 score to its band.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskCritical
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ComponentScores holds the four fused evidence channels, each in [0,1].
type ComponentScores struct {
	Behavioral float64 `json:"behavioral"`
	Network    float64 `json:"network"`
	Layering   float64 `json:"layering"`
	Velocity   float64 `json:"velocity"`
}

// RiskAssessment is the full result of scoring one account.
type RiskAssessment struct {
	AccountID  string            `json:"accountId"`
	RiskScore  float64           `json:"riskScore"`
	RiskLevel  RiskLevel         `json:"riskLevel"`
	Components ComponentScores   `json:"componentScores"`
	Behavioral BehavioralProfile `json:"behavioral"`
	Network    NetworkProfile    `json:"network"`
	Layering   LayeringReport    `json:"layering"`
	AssessedAt time.Time         `json:"assessedAt"`
}

// RiskScoreRecord is the persisted score row. Last write wins.
type RiskScoreRecord struct {
	AccountID   string    `json:"accountId"`
	RiskScore   float64   `json:"riskScore"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// BehavioralFeatures are temporal anomaly features of one account's history.
type BehavioralFeatures struct {
	TransactionCount    int     `json:"transactionCount"`
	InboundCount        int     `json:"inboundCount"`
	OutboundCount       int     `json:"outboundCount"`
	TotalVolume         float64 `json:"totalVolume"`
	TransactionVelocity float64 `json:"transactionVelocity"`
	InOutRatio          float64 `json:"inOutRatio"`
	AccountAgeDays      float64 `json:"accountAgeDays"`
	DormantActivation   bool    `json:"dormantActivation"`
	SmallToLarge        bool    `json:"smallToLarge"`
	HighThroughput      bool    `json:"highThroughput"`
	RapidInOut          bool    `json:"rapidInOut"`
}

// MarshalJSON renders an infinite in/out ratio as the string "Infinity".
func (f BehavioralFeatures) MarshalJSON() ([]byte, error) {
	type alias BehavioralFeatures
	out := struct {
		alias
		InOutRatio any `json:"inOutRatio"`
	}{alias: alias(f), InOutRatio: f.InOutRatio}
	if math.IsInf(f.InOutRatio, 1) {
		out.InOutRatio = "Infinity"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the "Infinity" ratio written by MarshalJSON.
func (f *BehavioralFeatures) UnmarshalJSON(data []byte) error {
	type alias BehavioralFeatures
	in := struct {
		*alias
		InOutRatio json.RawMessage `json:"inOutRatio"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch string(in.InOutRatio) {
	case "", "null":
		return nil
	case `"Infinity"`:
		f.InOutRatio = math.Inf(1)
		return nil
	}
	return json.Unmarshal(in.InOutRatio, &f.InOutRatio)
}

// BehavioralProfile pairs the features with their composite score.
type BehavioralProfile struct {
	Features BehavioralFeatures `json:"features"`
	Score    float64            `json:"score"`
	Level    RiskLevel          `json:"level"`
}

// NetworkProfile is the topology view of one account.
type NetworkProfile struct {
	DegreeCentrality      float64 `json:"degreeCentrality"`
	InDegree              int     `json:"inDegree"`
	OutDegree             int     `json:"outDegree"`
	BetweennessCentrality float64 `json:"betweennessCentrality"`
	PageRank              float64 `json:"pagerank"`
	IsHub                 bool    `json:"isHub"`
	IsFunnel              bool    `json:"isFunnel"`
	FunnelRatio           float64 `json:"funnelRatio,omitempty"`
	LayeringChains        int     `json:"layeringChains"`
	Score                 float64 `json:"score"`
}

// MultiHopPath is a time-bounded simple path through the graph.
type MultiHopPath struct {
	Path          []string `json:"path"`
	HopCount      int      `json:"hopCount"`
	TotalAmount   float64  `json:"totalAmount"`
	TimeSpanHours float64  `json:"timeSpanHours"`
}

// CircularFlow is a simple cycle of length three or more.
type CircularFlow struct {
	Cycle       []string `json:"cycle"`
	Length      int      `json:"length"`
	TotalAmount float64  `json:"totalAmount"`
}

// StructuringCluster is a burst of near-threshold outbound transfers.
type StructuringCluster struct {
	Account       string        `json:"account"`
	Transactions  []Transaction `json:"transactions"`
	TotalAmount   float64       `json:"totalAmount"`
	AverageAmount float64       `json:"averageAmount"`
	WindowHours   float64       `json:"windowHours"`
}

// LayeringReport holds the layering findings that involve one account.
type LayeringReport struct {
	MultiHopPaths []MultiHopPath       `json:"multiHopPaths"`
	CircularFlows []CircularFlow       `json:"circularFlows"`
	Structuring   []StructuringCluster `json:"structuring"`
	Score         float64              `json:"score"`
}

// FeatureContribution is one feature's share of an explanation.
type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Description  string  `json:"description"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Explanation is the ranked, human-readable account of an assessment.
type Explanation struct {
	AccountID            string                `json:"accountId"`
	RiskScore            float64               `json:"riskScore"`
	RiskLevel            RiskLevel             `json:"riskLevel"`
	Method               string                `json:"method"`
	TopReasons           []string              `json:"topReasons"`
	FeatureContributions []FeatureContribution `json:"featureContributions"`
}
