// Package reader loads scattering curves from delimited text files.
//
// A curve file holds one point per line: the scattering vector q, the
// intensity and, optionally, the intensity uncertainty. Columns may be
// separated by commas, tabs or runs of spaces. Blank lines and lines
// starting with '#' are skipped, and a leading line that does not parse
// as numbers is treated as a header.
package reader
