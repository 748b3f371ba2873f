package kernel

// StageSpec declares one stage of a definition.
type StageSpec struct {
	// ID names the stage within the definition.
	ID string `yaml:"id"`

	// Class is the registered stage class.
	Class string `yaml:"stage_cls"`

	// Kwargs configures the stage.
	Kwargs map[string]any `yaml:"kwargs,omitempty"`

	// PolicyID binds a chaining policy. Empty means the stage never
	// requests follow-up stages.
	PolicyID string `yaml:"policy_id,omitempty"`

	// BeforeIDs must run before this stage; AfterIDs after it. They are
	// only used when the definition has no explicit execution order.
	BeforeIDs []string `yaml:"before_ids,omitempty"`
	AfterIDs  []string `yaml:"after_ids,omitempty"`
}

// PolicySpec declares one chaining policy of a definition.
type PolicySpec struct {
	// ID names the policy within the definition.
	ID string `yaml:"id"`

	// Class is the registered policy class.
	Class string `yaml:"policy_cls"`

	// Condition is the registered condition class.
	Condition string `yaml:"condition_cls"`

	// ConditionKwargs configures the condition.
	ConditionKwargs map[string]any `yaml:"condition_kwargs,omitempty"`

	// NextStageIDs are the stage ids the policy requests.
	NextStageIDs []string `yaml:"next_stage_ids"`
}

// InsertionSpec selects the scheduler's insertion policy.
type InsertionSpec struct {
	// Class is the registered insertion policy class.
	Class string `yaml:"policy_cls"`

	// Kwargs configures the insertion policy.
	Kwargs map[string]any `yaml:"kwargs,omitempty"`
}

// Definition is a complete declarative pipeline.
type Definition struct {
	Stages   []StageSpec  `yaml:"stages"`
	Policies []PolicySpec `yaml:"policies,omitempty"`

	// ExecutionOrder lists the ids of the initial stages. When empty, the
	// initial stages are every stage no policy requests, ordered by their
	// before/after hints.
	ExecutionOrder []string `yaml:"execution_order,omitempty"`

	// Insertion selects the insertion policy. A zero value selects the
	// default saturation policy.
	Insertion InsertionSpec `yaml:"insertion,omitempty"`
}

// Kernel provides a pipeline definition.
type Kernel interface {
	Define() Definition
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func() Definition

// Define implements Kernel.
func (f KernelFunc) Define() Definition { return f() }
