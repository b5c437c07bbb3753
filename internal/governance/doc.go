// Package governance implements weighted proposal voting.
//
// State machine per proposal:
//
//	Active --> Passed --> Executed
//	   \
//	    `----> Failed
//
// A proposal leaves Active exactly once, when it is finalized: either by the
// vote whose timestamp reaches the voting deadline, or by an explicit
// Finalize call after the deadline. There is no timer.
//
// Finalization rule:
//   - quorum not reached        -> Failed
//   - yes + no == 0              -> Failed
//   - yes / (yes+no) > threshold -> Passed
//   - otherwise                  -> Failed
//
// Abstain weight counts toward quorum but not toward the pass ratio.
// Ratios are compared by 128-bit cross-multiplication; no floats.
//
// Execution only authorizes: it flips Passed to Executed after the timelock
// and returns an ir.ExecutionAuthorization. It moves no value.
//
// CONCURRENCY:
//
// Each operation runs under the engine mutex as a single load-validate-commit
// step. The store additionally version-checks the aggregate on commit, so two
// engines sharing a database cannot interleave on the same state. Every
// validation happens before the commit; a rejected operation changes nothing.
package governance
