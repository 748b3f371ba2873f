package kernel

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/saxsflow/internal/pipeline"
	"github.com/nao1215/saxsflow/internal/stage"
)

// StageBuild carries everything a stage constructor receives.
type StageBuild struct {
	ID     string
	Kwargs map[string]any
	Policy *pipeline.ChainingPolicy
	Logger *slog.Logger
}

// StageConstructor builds a stage from its spec.
type StageConstructor func(b StageBuild) (pipeline.Stage, error)

// PolicyConstructor builds a chaining policy. next holds one factory per
// next-stage id, in declaration order.
type PolicyConstructor func(id string, condition pipeline.Condition, next []pipeline.StageFactory) (*pipeline.ChainingPolicy, error)

// ConditionConstructor builds a condition from keyword arguments.
type ConditionConstructor func(kwargs map[string]any) (pipeline.Condition, error)

// InsertionConstructor builds an insertion policy factory from keyword
// arguments.
type InsertionConstructor func(kwargs map[string]any) (pipeline.InsertionFactory, error)

// Class names of the built-in registrations.
const (
	PolicySingleStageChaining = "single_stage_chaining"

	ConditionTrue       = "true"
	ConditionKeyPresent = "key_present"
	ConditionKeyEquals  = "key_equals"
	ConditionThreshold  = "threshold"

	InsertionAlways      = "always"
	InsertionNever       = "never"
	InsertionSaturation  = "saturation"
	InsertionMetadataKey = "metadata_key"
)

// Registries groups the registries a Compiler resolves class names in.
type Registries struct {
	Stages     *Registry[StageConstructor]
	Policies   *Registry[PolicyConstructor]
	Conditions *Registry[ConditionConstructor]
	Insertions *Registry[InsertionConstructor]
}

// NewRegistries returns empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Stages:     NewRegistry[StageConstructor]("stage"),
		Policies:   NewRegistry[PolicyConstructor]("policy"),
		Conditions: NewRegistry[ConditionConstructor]("condition"),
		Insertions: NewRegistry[InsertionConstructor]("insertion policy"),
	}
}

// BuiltinRegistries returns registries holding every built-in stage,
// policy, condition and insertion policy.
func BuiltinRegistries() *Registries {
	r := NewRegistries()

	r.Stages.MustRegister(stage.NameCut, newCut)
	r.Stages.MustRegister(stage.NameFilter, newFilter)
	r.Stages.MustRegister(stage.NameBackground, newBackground)
	r.Stages.MustRegister(stage.NameFindPeak, newFindPeak)
	r.Stages.MustRegister(stage.NameProcessPeak, newProcessPeak)

	r.Policies.MustRegister(PolicySingleStageChaining, newSingleStageChaining)

	r.Conditions.MustRegister(ConditionTrue, newTrueCondition)
	r.Conditions.MustRegister(ConditionKeyPresent, newKeyPresentCondition)
	r.Conditions.MustRegister(ConditionKeyEquals, newKeyEqualsCondition)
	r.Conditions.MustRegister(ConditionThreshold, newThresholdCondition)

	r.Insertions.MustRegister(InsertionAlways, newAlwaysInsert)
	r.Insertions.MustRegister(InsertionNever, newNeverInsert)
	r.Insertions.MustRegister(InsertionSaturation, newSaturationInsert)
	r.Insertions.MustRegister(InsertionMetadataKey, newMetadataKeyInsert)

	return r
}

func stageOptions(b StageBuild) []stage.Option {
	return []stage.Option{
		stage.WithName(b.ID),
		stage.WithLogger(b.Logger),
		stage.WithPolicy(b.Policy),
	}
}

func newCut(b StageBuild) (pipeline.Stage, error) {
	cfg := stage.DefaultCutConfig()
	if err := stage.DecodeConfig(b.Kwargs, &cfg); err != nil {
		return nil, err
	}
	return stage.NewCut(cfg, stageOptions(b)...)
}

func newFilter(b StageBuild) (pipeline.Stage, error) {
	cfg := stage.DefaultFilterConfig()
	if err := stage.DecodeConfig(b.Kwargs, &cfg); err != nil {
		return nil, err
	}
	return stage.NewFilter(cfg, stageOptions(b)...)
}

func newBackground(b StageBuild) (pipeline.Stage, error) {
	cfg := stage.DefaultBackgroundConfig()
	if err := stage.DecodeConfig(b.Kwargs, &cfg); err != nil {
		return nil, err
	}
	return stage.NewBackground(cfg, stageOptions(b)...)
}

func newFindPeak(b StageBuild) (pipeline.Stage, error) {
	cfg := stage.DefaultFindPeakConfig()
	if err := stage.DecodeConfig(b.Kwargs, &cfg); err != nil {
		return nil, err
	}
	return stage.NewFindPeak(cfg, stageOptions(b)...)
}

func newProcessPeak(b StageBuild) (pipeline.Stage, error) {
	cfg := stage.DefaultProcessPeakConfig()
	if err := stage.DecodeConfig(b.Kwargs, &cfg); err != nil {
		return nil, err
	}
	return stage.NewProcessPeak(cfg, stageOptions(b)...)
}

func newSingleStageChaining(id string, condition pipeline.Condition, next []pipeline.StageFactory) (*pipeline.ChainingPolicy, error) {
	if len(next) != 1 {
		return nil, fmt.Errorf("%w: policy %q needs exactly one next stage, got %d", ErrRegistration, id, len(next))
	}
	return pipeline.NewChainingPolicy(id, condition, next[0]), nil
}

// conditionArgs are the keyword arguments shared by the built-in
// conditions.
type conditionArgs struct {
	Key       string  `yaml:"key"`
	Value     any     `yaml:"value"`
	Threshold float64 `yaml:"threshold"`
}

func decodeConditionArgs(kwargs map[string]any, needKey bool) (conditionArgs, error) {
	var args conditionArgs
	if err := stage.DecodeConfig(kwargs, &args); err != nil {
		return args, err
	}
	if needKey && args.Key == "" {
		return args, fmt.Errorf("%w: condition requires a key", stage.ErrInvalidConfig)
	}
	return args, nil
}

func newTrueCondition(map[string]any) (pipeline.Condition, error) {
	return pipeline.TrueCondition{}, nil
}

func newKeyPresentCondition(kwargs map[string]any) (pipeline.Condition, error) {
	args, err := decodeConditionArgs(kwargs, true)
	if err != nil {
		return nil, err
	}
	return pipeline.KeyPresentCondition{Key: args.Key}, nil
}

func newKeyEqualsCondition(kwargs map[string]any) (pipeline.Condition, error) {
	args, err := decodeConditionArgs(kwargs, true)
	if err != nil {
		return nil, err
	}
	return pipeline.KeyEqualsCondition{Key: args.Key, Value: args.Value}, nil
}

func newThresholdCondition(kwargs map[string]any) (pipeline.Condition, error) {
	args, err := decodeConditionArgs(kwargs, true)
	if err != nil {
		return nil, err
	}
	return pipeline.ThresholdCondition{Key: args.Key, Threshold: args.Threshold}, nil
}

func newAlwaysInsert(map[string]any) (pipeline.InsertionFactory, error) {
	return func() pipeline.InsertionPolicy { return pipeline.AlwaysInsert{} }, nil
}

func newNeverInsert(map[string]any) (pipeline.InsertionFactory, error) {
	return func() pipeline.InsertionPolicy { return pipeline.NeverInsert{} }, nil
}

func newSaturationInsert(kwargs map[string]any) (pipeline.InsertionFactory, error) {
	args := struct {
		Limit int `yaml:"limit"`
	}{Limit: pipeline.DefaultSaturationLimit}
	if err := stage.DecodeConfig(kwargs, &args); err != nil {
		return nil, err
	}
	if args.Limit < 0 {
		return nil, fmt.Errorf("%w: saturation limit must be non-negative, got %d", stage.ErrInvalidConfig, args.Limit)
	}
	return pipeline.Saturation(args.Limit), nil
}

func newMetadataKeyInsert(kwargs map[string]any) (pipeline.InsertionFactory, error) {
	args, err := decodeConditionArgs(kwargs, true)
	if err != nil {
		return nil, err
	}
	return func() pipeline.InsertionPolicy { return pipeline.MetadataKeyInsert{Key: args.Key} }, nil
}
