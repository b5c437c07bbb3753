// Package ir provides the record types shared by the authorization engines.
//
// This package contains type definitions, canonical serialization, and
// content digests only. All other internal packages import ir; ir imports
// nothing internal. This keeps the record model the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - NO float types in records - weights and amounts are uint64
//   - Vote thresholds are integer percentages, compared by cross-multiplication
//   - Sets of identities (voters, approvers, signers) are ordered slices
//     with no duplicates
//   - All JSON tags use snake_case
package ir
