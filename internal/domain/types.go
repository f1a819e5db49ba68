// Package domain contains the core entities for condition likelihood scoring:
// symptom nodes, the relational edges between them, the conditions they form
// and the score results produced when a user's diagnostic stack is matched
// against them.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Severity is the optional ordinal severity of a symptom node.
type Severity string

const (
	SeverityUnspecified Severity = ""
	SeverityLow         Severity = "low"
	SeverityMedium      Severity = "medium"
	SeverityHigh        Severity = "high"
)

// Relationship labels the kind of link an edge models between two symptoms.
// It is informational and never changes scoring weight.
type Relationship string

const (
	RelationshipCausal       Relationship = "causal"
	RelationshipConcurrent   Relationship = "concurrent"
	RelationshipProgressive  Relationship = "progressive"
	RelationshipCompensatory Relationship = "compensatory"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrInvalidWeights  = errors.New("invalid scoring weights")
)

// IsValid reports whether the severity is one of the known ordinals.
// An unspecified severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityUnspecified, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Weight returns the evidence weight used when severity weighting is enabled.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 1
	}
}

func (s Severity) String() string {
	if s == SeverityUnspecified {
		return "unspecified"
	}
	return string(s)
}

// IsKnown reports whether the relationship is one of the labels used by the
// bundled dataset. Unknown labels are still accepted.
func (r Relationship) IsKnown() bool {
	switch r {
	case RelationshipCausal, RelationshipConcurrent, RelationshipProgressive, RelationshipCompensatory:
		return true
	default:
		return false
	}
}

// SymptomNode is one refined symptom belonging to a condition.
type SymptomNode struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	BaseSymptom string   `json:"base_symptom,omitempty" yaml:"base_symptom"`
	Severity    Severity `json:"severity,omitempty" yaml:"severity"`
}

// ConditionEdge links two nodes of the same condition.
type ConditionEdge struct {
	From         string       `json:"from" yaml:"from"`
	To           string       `json:"to" yaml:"to"`
	Relationship Relationship `json:"relationship,omitempty" yaml:"relationship"`
}

// Condition is a named health condition modelled as a small symptom graph.
type Condition struct {
	Name     string          `json:"name" yaml:"name"`
	Category string          `json:"category,omitempty" yaml:"category"`
	Nodes    []SymptomNode   `json:"nodes" yaml:"nodes"`
	Edges    []ConditionEdge `json:"edges" yaml:"edges"`
}

// HasNode reports whether the condition authors a node with the given id.
func (c *Condition) HasNode(id string) bool {
	for i := range c.Nodes {
		if c.Nodes[i].ID == id {
			return true
		}
	}
	return false
}

// Category groups conditions for presentation.
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Icon        string `json:"icon,omitempty" yaml:"icon"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// ScoreResult is the transient match strength of one condition against a
// selection. It is recomputed on every analysis and never mutated.
type ScoreResult struct {
	Condition        string   `json:"condition"`
	Category         string   `json:"category,omitempty"`
	MatchedNodeCount int      `json:"matched_node_count"`
	TotalNodeCount   int      `json:"total_node_count"`
	MatchedEdgeCount int      `json:"matched_edge_count"`
	TotalEdgeCount   int      `json:"total_edge_count"`
	Score            float64  `json:"score"`
	MatchedNodes     []string `json:"matched_nodes"`
}

// Weights splits a likelihood score between node and edge evidence.
type Weights struct {
	Node float64 `json:"node_weight" mapstructure:"node_weight"`
	Edge float64 `json:"edge_weight" mapstructure:"edge_weight"`
}

const (
	DefaultNodeWeight = 0.6
	DefaultEdgeWeight = 0.4

	weightTolerance = 1e-9
)

// DefaultWeights favours direct symptom evidence while still rewarding
// relational consistency.
func DefaultWeights() Weights {
	return Weights{Node: DefaultNodeWeight, Edge: DefaultEdgeWeight}
}

// Validate checks that both weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if w.Node < 0 || w.Edge < 0 || math.IsNaN(w.Node) || math.IsNaN(w.Edge) {
		return fmt.Errorf("%w: weights must be non-negative (node=%v, edge=%v)", ErrInvalidWeights, w.Node, w.Edge)
	}
	if math.Abs(w.Node+w.Edge-1) > weightTolerance {
		return fmt.Errorf("%w: node and edge weights must sum to 1 (got %v)", ErrInvalidWeights, w.Node+w.Edge)
	}
	return nil
}

// AnalysisRecord is a persisted analysis request and its ranked outcome.
type AnalysisRecord struct {
	ID               string        `json:"id"`
	ClientID         string        `json:"client_id,omitempty"`
	Selection        []string      `json:"selection"`
	Category         string        `json:"category,omitempty"`
	Results          []ScoreResult `json:"results"`
	Weights          Weights       `json:"weights"`
	DatasetVersion   string        `json:"dataset_version"`
	ProcessingTimeMs int           `json:"processing_time_ms"`
	CreatedAt        time.Time     `json:"created_at"`
}
