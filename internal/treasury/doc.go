// Package treasury implements the multisig transaction engine.
//
// A transaction is Pending until it executes; Executed is terminal. The
// proposer is the first approver. Execution needs RequiredSigners distinct
// approvals from the current signer set and is rate limited by a rolling
// daily cap and, for large amounts, a cooldown since the last execution.
//
// Execution ordering: the transfer is invoked first with a key derived from
// the vault and transaction id, and the Executed flag is committed only
// after the transfer reports success. A crash between the two leaves the
// transaction Pending; the retried Execute sends the same key, which the
// transfer service deduplicates, and then commits.
package treasury
