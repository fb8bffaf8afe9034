// Package harness runs anchor lifecycle scenarios against the simulated
// tracking subsystem.
//
// A scenario seeds the record store, then runs one or more sessions. Each
// session is an app launch: a fresh simulated session and a fresh engine over
// the same record store and the same platform-side persistence. A session may
// save anchors, run a load pass, or both.
//
// # Scenario Format
//
//	name: two-saves-reload
//	description: "Anchors saved in one run come back in the next"
//	loader:
//	  delay: 3s
//	  poll_interval: 500ms
//	seed:
//	  - fallback: [1, 0, 1]
//	    known: true
//	raw:
//	  anchor_guid_0: "not-a-guid"
//	sessions:
//	  - planes: [floor]
//	    saves:
//	      - plane: floor
//	        at: [1, 0, 2]
//	  - stable_after: 2
//	    load: true
//	assertions:
//	  - type: count
//	    count: 2
//	  - type: outcomes
//	    session: 1
//	    outcomes: [resolved, resolved]
//
// # Assertion Types
//
//   - count: final record count
//   - saves: per-save results of a session (committed, warning, attach_failed, cancelled)
//   - outcomes: outcome kinds of a session's load pass, in index order
//   - resolve_order: record indices handed to the subsystem, in order
//   - placement: where content for one record index was placed
//   - load_result: terminal state of a load pass (done, timed_out, cancelled)
//
// # Deterministic Testing
//
// Every run uses a fake clock that fires immediately, and the simulator
// derives anchor identifiers from the scenario name, so traces are identical
// across runs and can be compared against golden files.
package harness
