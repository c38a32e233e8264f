// Package harness runs scripted attendance sessions against a real engine.
//
// Scenarios are YAML files:
//
//	name: flush_after_debounce
//	description: "Two quick edits produce one write"
//	class_label: CSE-A
//	roster:
//	  - { roll_no: S1, name: Asha }
//	  - { roll_no: S2, name: Bilal }
//	steps:
//	  - open: "2024-05-01"
//	  - set: { roll_no: S1, status: late }
//	  - advance: 1500ms
//	  - await: saved
//	  - detect: S2
//	assertions:
//	  - type: stored
//	    roll_no: S1
//	    expect: { status: late, source: manual }
//	  - type: commits
//	    count: 2
//
// # Steps
//
//   - open: activate a date (initializing it if needed)
//   - set: edit one student through the engine
//   - advance: move the fake clock, firing due debounce timers
//   - flush: persist pending edits now
//   - detect: write a camera detection straight to the store
//   - remove: delete a stored record
//   - fail_commits: fail the next n store commits
//   - await: wait for a save state
//
// open, set and flush accept expect_error with an error code such as
// READ_ONLY.
//
// # Assertion Types
//
//   - state: the final save state
//   - buffer: fields of the engine's visible record, and whether it is pending
//   - stored: fields of the stored record, or that it is missing
//   - commits: number of batches the engine wrote, the init batch included
//   - report_contains: a substring of the rendered report
//
// Every run uses a fresh in-memory store, a fake clock starting at Epoch
// and sequential batch ids, so save-state traces are reproducible and can
// be compared against golden files.
package harness
