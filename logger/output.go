package logger

// Output controls what categories of information the CLI prints at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
//	0 (default) - final graph summary, lock table, errors
//	1 (-v)      - + one line per applied batch, stream open/close
//	2 (-vv)     - + activity log entries as they arrive
//	3 (-vvv)    - + every mutation inside each batch

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Final snapshot, lock table
	OutputErrors                        // Stream errors with hints

	// Level 1 (-v)
	OutputBatches   // Batch summaries
	OutputLifecycle // Stream open/close

	// Level 2 (-vv)
	OutputActivity // Pipeline activity entries

	// Level 3 (-vvv)
	OutputMutations // Individual mutations
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:   VerbosityUser,
	OutputErrors:    VerbosityUser,
	OutputBatches:   VerbosityInfo,
	OutputLifecycle: VerbosityInfo,
	OutputActivity:  VerbosityDebug,
	OutputMutations: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}
