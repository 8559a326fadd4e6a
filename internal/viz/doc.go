// Package viz renders solver runs in the terminal.
//
// [Model] is a Bubble Tea application that advances a simulator one outer
// step per tick and shows the storage trajectory, the evaluation cost per
// step and the diagnostics of the last solve. The lipgloss styles in this
// package are shared with the command line output.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	R     - Restart from the initial state
//	Tab   - Cycle the plotted sequence
//	+/-   - Tighten/relax the tolerance by a factor of ten
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
