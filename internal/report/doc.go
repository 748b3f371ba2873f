// Package report renders analysis results.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text output for terminal display
//   - JSONWriter and FullJSONWriter: structured JSON for tool integration
//   - MarkdownWriter: tables and a mermaid pie chart for sharing
//   - PlotWriter: PNG plots of a curve with its fitted model
//
// Design decision: report writing is kept apart from the result data
// structures in the model package, so new formats never touch the core
// types. Text writers implement the Writer interface and can be composed
// with MultiWriter.
package report
