// Package stage implements the processing stages of a SAXS analysis:
// Cut trims the low-q region, Filter smooths the intensity, Background
// fits and subtracts the instrumental background, and FindPeak and
// ProcessPeak cooperate to extract peaks one at a time.
//
// Every stage is configured by a typed config struct that is defaulted
// and validated once in the constructor. DecodeConfig fills a config
// from the loosely typed keyword arguments of a pipeline document.
//
// Peak extraction is a loop driven by the scheduler, not by the stages:
// FindPeak searches for candidates and, through its chaining policy,
// requests a ProcessPeak for the largest one. ProcessPeak fits and
// subtracts that peak and requests a new FindPeak. The loop ends when
// FindPeak finds no unprocessed candidate or the insertion policy
// stops granting requests.
package stage
