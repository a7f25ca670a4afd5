// Package ir holds the capture plan types shared by the compiler, the
// store, the harness and the CLI, plus the canonical encoding used to
// identify a plan by content.
//
// ir imports nothing internal; every other package may import it.
//
// Key design constraints:
//   - No float types in plans; signal parameters are integers
//   - All JSON tags use snake_case
//   - Plans are identified by PlanHash, never by file name
package ir
