package kernel

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nao1215/saxsflow/internal/pipeline"
)

// Compiler builds pipelines from kernel definitions.
type Compiler struct {
	registries *Registries
	logger     *slog.Logger
	insertion  pipeline.InsertionFactory
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithRegistries replaces the built-in registries.
func WithRegistries(r *Registries) CompilerOption {
	return func(c *Compiler) {
		c.registries = r
	}
}

// WithLogger sets the logger handed to the pipeline and its stages.
func WithLogger(logger *slog.Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithInsertion overrides the insertion policy of every definition.
func WithInsertion(f pipeline.InsertionFactory) CompilerOption {
	return func(c *Compiler) {
		c.insertion = f
	}
}

// NewCompiler creates a Compiler. Without WithRegistries it resolves
// names in BuiltinRegistries.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registries == nil {
		c.registries = BuiltinRegistries()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Build compiles the definition of k into a pipeline.
//
// Every class name, id reference and keyword argument is checked here:
// policies are built first, then every stage is built once with its
// policy injected, and only then is the initial stage list assembled.
// A returned error means no pipeline was produced.
func (c *Compiler) Build(k Kernel) (*pipeline.Pipeline, error) {
	def := k.Define()

	stageSpecs, err := indexStages(def.Stages)
	if err != nil {
		return nil, err
	}
	policySpecs, err := indexPolicies(def.Policies)
	if err != nil {
		return nil, err
	}

	ctors := make(map[string]StageConstructor, len(def.Stages))
	for _, spec := range def.Stages {
		ctor, err := c.registries.Stages.Lookup(spec.Class)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", spec.ID, err)
		}
		ctors[spec.ID] = ctor
	}

	// builders is filled after the policies exist; the policies' next
	// stage factories read it lazily.
	builders := make(map[string]pipeline.StageFactory, len(def.Stages))

	policies := make(map[string]*pipeline.ChainingPolicy, len(def.Policies))
	for _, spec := range def.Policies {
		policy, err := c.buildPolicy(spec, stageSpecs, builders)
		if err != nil {
			return nil, err
		}
		policies[spec.ID] = policy
	}

	for _, spec := range def.Stages {
		var policy *pipeline.ChainingPolicy
		if spec.PolicyID != "" {
			if _, ok := policySpecs[spec.PolicyID]; !ok {
				return nil, fmt.Errorf("%w: stage %q references unknown policy %q", ErrRegistration, spec.ID, spec.PolicyID)
			}
			policy = policies[spec.PolicyID]
		}

		build := StageBuild{
			ID:     spec.ID,
			Kwargs: spec.Kwargs,
			Policy: policy,
			Logger: c.logger,
		}
		ctor := ctors[spec.ID]
		builders[spec.ID] = func() (pipeline.Stage, error) {
			return ctor(build)
		}

		if _, err := builders[spec.ID](); err != nil {
			return nil, fmt.Errorf("stage %q: %w", spec.ID, err)
		}
	}

	order := def.ExecutionOrder
	if len(order) == 0 {
		order, err = initialOrder(def)
		if err != nil {
			return nil, err
		}
	}

	insertion, err := c.buildInsertion(def.Insertion)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		pipeline.WithLogger(c.logger),
		pipeline.WithInsertion(insertion),
	)
	for _, id := range order {
		if _, ok := stageSpecs[id]; !ok {
			return nil, fmt.Errorf("%w: execution order references unknown stage %q", ErrRegistration, id)
		}
		st, err := builders[id]()
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", id, err)
		}
		p.AddStage(st)
	}

	c.logger.Debug("pipeline compiled",
		"stages", p.StageNames(),
		"policies", len(policies),
	)
	return p, nil
}

func (c *Compiler) buildPolicy(
	spec PolicySpec,
	stageSpecs map[string]StageSpec,
	builders map[string]pipeline.StageFactory,
) (*pipeline.ChainingPolicy, error) {
	ctor, err := c.registries.Policies.Lookup(spec.Class)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", spec.ID, err)
	}
	condCtor, err := c.registries.Conditions.Lookup(spec.Condition)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", spec.ID, err)
	}
	condition, err := condCtor(spec.ConditionKwargs)
	if err != nil {
		return nil, fmt.Errorf("policy %q: condition: %w", spec.ID, err)
	}

	next := make([]pipeline.StageFactory, 0, len(spec.NextStageIDs))
	for _, id := range spec.NextStageIDs {
		if _, ok := stageSpecs[id]; !ok {
			return nil, fmt.Errorf("%w: policy %q references unknown next stage %q", ErrRegistration, spec.ID, id)
		}
		next = append(next, func() (pipeline.Stage, error) {
			return builders[id]()
		})
	}

	return ctor(spec.ID, condition, next)
}

func (c *Compiler) buildInsertion(spec InsertionSpec) (pipeline.InsertionFactory, error) {
	if c.insertion != nil {
		return c.insertion, nil
	}
	if spec.Class == "" {
		return pipeline.DefaultInsertion(), nil
	}
	ctor, err := c.registries.Insertions.Lookup(spec.Class)
	if err != nil {
		return nil, err
	}
	f, err := ctor(spec.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("insertion policy %q: %w", spec.Class, err)
	}
	return f, nil
}

func indexStages(specs []StageSpec) (map[string]StageSpec, error) {
	out := make(map[string]StageSpec, len(specs))
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: stage of class %q has no id", ErrRegistration, s.Class)
		}
		if _, dup := out[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate stage id %q", ErrRegistration, s.ID)
		}
		out[s.ID] = s
	}
	return out, nil
}

func indexPolicies(specs []PolicySpec) (map[string]PolicySpec, error) {
	out := make(map[string]PolicySpec, len(specs))
	for _, p := range specs {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: policy of class %q has no id", ErrRegistration, p.Class)
		}
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate policy id %q", ErrRegistration, p.ID)
		}
		out[p.ID] = p
	}
	return out, nil
}

// initialOrder derives the initial stage list when no execution order is
// given: every stage that no policy requests, topologically sorted by the
// before/after hints, ties kept in declaration order.
func initialOrder(def Definition) ([]string, error) {
	requested := make(map[string]bool)
	for _, p := range def.Policies {
		for _, id := range p.NextStageIDs {
			requested[id] = true
		}
	}

	var ids []string
	for _, s := range def.Stages {
		if !requested[s.ID] {
			ids = append(ids, s.ID)
		}
	}

	known := make(map[string]bool, len(def.Stages))
	for _, s := range def.Stages {
		known[s.ID] = true
	}

	// edges[a] holds the stages that must run after a.
	edges := make(map[string][]string)
	indegree := make(map[string]int, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	addEdge := func(from, to string) {
		_, fromOK := indegree[from]
		_, toOK := indegree[to]
		if !fromOK || !toOK || slices.Contains(edges[from], to) {
			return
		}
		edges[from] = append(edges[from], to)
		indegree[to]++
	}
	for _, s := range def.Stages {
		for _, b := range s.BeforeIDs {
			if !known[b] {
				return nil, fmt.Errorf("%w: stage %q orders after unknown stage %q", ErrRegistration, s.ID, b)
			}
			addEdge(b, s.ID)
		}
		for _, a := range s.AfterIDs {
			if !known[a] {
				return nil, fmt.Errorf("%w: stage %q orders before unknown stage %q", ErrRegistration, s.ID, a)
			}
			addEdge(s.ID, a)
		}
	}

	order := make([]string, 0, len(ids))
	done := make(map[string]bool, len(ids))
	for len(order) < len(ids) {
		progressed := false
		for _, id := range ids {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, next := range edges[id] {
				indegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("%w: cyclic before/after hints", ErrRegistration)
		}
	}
	return order, nil
}
