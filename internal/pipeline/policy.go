package pipeline

import (
	"fmt"

	"github.com/nao1215/saxsflow/internal/model"
)

// StageFactory builds a fresh stage instance.
type StageFactory func() (Stage, error)

// StageRequest is what a stage submits to its chaining policy.
type StageRequest struct {
	// EvalMetadata is the input of the policy's condition.
	EvalMetadata model.Metadata

	// SchedulerMetadata is passed through to the insertion policy.
	SchedulerMetadata model.Metadata

	// Flow is the flow metadata the scheduler adopts when the request is
	// approved.
	Flow model.FlowMetadata
}

// ApprovalRequest is one requested stage awaiting the insertion policy.
type ApprovalRequest struct {
	Stage    Stage
	Metadata model.Metadata
	Flow     model.FlowMetadata
}

// ChainingPolicy decides whether a stage asks for its successor.
// It holds no mutable state and may be shared by many stage instances.
type ChainingPolicy struct {
	id        string
	condition Condition
	next      StageFactory
}

// NewChainingPolicy returns a policy that requests one stage built by
// next whenever condition holds. A nil condition always holds.
func NewChainingPolicy(id string, condition Condition, next StageFactory) *ChainingPolicy {
	if condition == nil {
		condition = TrueCondition{}
	}
	return &ChainingPolicy{
		id:        id,
		condition: condition,
		next:      next,
	}
}

// ID returns the policy identifier.
func (p *ChainingPolicy) ID() string { return p.id }

// Condition returns the attached condition.
func (p *ChainingPolicy) Condition() Condition { return p.condition }

// Request evaluates the condition on req.EvalMetadata and returns a
// single request for a new stage when it holds. A nil policy never
// requests.
func (p *ChainingPolicy) Request(req StageRequest) ([]ApprovalRequest, error) {
	if p == nil || !p.condition.Evaluate(req.EvalMetadata) {
		return nil, nil
	}
	if p.next == nil {
		return nil, fmt.Errorf("policy %s: %w", p.id, ErrNoNextStage)
	}

	st, err := p.next()
	if err != nil {
		return nil, fmt.Errorf("policy %s: build next stage: %w", p.id, err)
	}
	return []ApprovalRequest{{
		Stage:    st,
		Metadata: req.SchedulerMetadata.Clone(),
		Flow:     req.Flow,
	}}, nil
}
