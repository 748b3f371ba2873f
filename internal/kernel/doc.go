// Package kernel turns a declarative pipeline definition into a runnable
// pipeline.Pipeline.
//
// A Definition lists stage and policy specs by class name. Class names
// resolve through typed registries that are filled at start-up and
// checked when a Definition is compiled, so an unknown or misspelled
// name fails before any sample is read. The Compiler builds every policy
// before any stage, then constructs each stage with its policy injected,
// and finally assembles the initial stage list.
//
// DefaultKernel is the standard SAXS analysis; DocumentKernel reads the
// same structure from a YAML document.
package kernel
