package kernel

import (
	"github.com/nao1215/saxsflow/internal/model"
	"github.com/nao1215/saxsflow/internal/stage"
)

// Policy ids of the default definition.
const (
	PeaksPolicyID = "peaks_policy"
	FitPolicyID   = "fit_policy"
)

// DefaultKernel is the standard SAXS analysis: trim the low-q region,
// smooth, subtract the background, then extract peaks until none are
// left.
type DefaultKernel struct {
	// CutPoint overrides the number of dropped leading points when > 0.
	CutPoint int
}

// Define implements Kernel.
func (k DefaultKernel) Define() Definition {
	cutPoint := 200
	if k.CutPoint > 0 {
		cutPoint = k.CutPoint
	}

	return Definition{
		Stages: []StageSpec{
			{
				ID:     stage.NameCut,
				Class:  stage.NameCut,
				Kwargs: map[string]any{"cut_point": cutPoint},
			},
			{
				ID:        stage.NameFilter,
				Class:     stage.NameFilter,
				Kwargs:    map[string]any{"window": 10},
				BeforeIDs: []string{stage.NameCut},
			},
			{
				ID:        stage.NameBackground,
				Class:     stage.NameBackground,
				Kwargs:    map[string]any{"model": stage.ModelHyperbola, "coef": 0.7},
				BeforeIDs: []string{stage.NameFilter},
			},
			{
				ID:        stage.NameFindPeak,
				Class:     stage.NameFindPeak,
				PolicyID:  PeaksPolicyID,
				BeforeIDs: []string{stage.NameBackground},
			},
			{
				ID:       stage.NameProcessPeak,
				Class:    stage.NameProcessPeak,
				PolicyID: FitPolicyID,
			},
		},
		Policies: []PolicySpec{
			{
				ID:              PeaksPolicyID,
				Class:           PolicySingleStageChaining,
				Condition:       ConditionKeyPresent,
				ConditionKwargs: map[string]any{"key": model.KeyCurrent},
				NextStageIDs:    []string{stage.NameProcessPeak},
			},
			{
				ID:           FitPolicyID,
				Class:        PolicySingleStageChaining,
				Condition:    ConditionTrue,
				NextStageIDs: []string{stage.NameFindPeak},
			},
		},
		ExecutionOrder: []string{
			stage.NameCut,
			stage.NameFilter,
			stage.NameBackground,
			stage.NameFindPeak,
		},
	}
}
