// Package config provides the configuration of the saxsflow command: input
// files, pipeline selection, engine limits, report formats and the run
// store location. It also loads the optional .saxsflow file that tunes
// stage parameters globally or per input file.
package config
