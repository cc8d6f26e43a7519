// Package ui renders the router's terminal output.
//
// It has three parts:
//
//   - Reporter: the line-oriented progress log of a configure run, one
//     mark per polling attempt and a summary block at the end
//   - RenderStatus: the read-only status report
//   - Watch: a live status view built on bubbletea that refreshes the
//     report on an interval until the user quits
//
// Styling goes through a lipgloss renderer bound to the output writer, so
// colors are dropped automatically when output is not a terminal.
package ui
