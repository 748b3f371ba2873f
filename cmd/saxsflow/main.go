// Package main provides the entry point for the saxsflow CLI.
//
// saxsflow analyses small-angle X-ray scattering curves: it trims and
// smooths the curve, subtracts the background and extracts Bragg peaks
// one at a time until none are left.
//
// Usage:
//
//	saxsflow analyze <curve-file>...
//	saxsflow history <curve-file>
//
// See --help for all available options.
package main

// main is the entry point for saxsflow.
func main() {
	Execute()
}
