// Package core provides the business logic for project record imports.
//
// This package contains the import pipeline independent of any transport.
// It is used by the HTTP handlers in package web and by tests without
// modification.
//
// # Pipeline
//
// Every batch flows through the same stages:
//
//  1. Row parsing: [ParseFile] turns CSV, TSV or XLSX bytes into ordered
//     [RawRow] values; [RowsFromRecords] does the same for JSON records.
//  2. Normalization: a [Normalizer] coerces cells to typed candidates using
//     the field catalog. Coercion never fails; bad values are kept.
//  3. Validation: the [Validator] applies the declarative rule catalog
//     (see [Rules]) and reports every violation of a row at once.
//  4. Commit: the [CommitCoordinator] persists the OK rows inside one
//     transaction, one savepoint per row, checking duplicates through the
//     [DuplicateResolver].
//  5. Outcome: [BuildOutcome] reconciles both stages into a [BatchOutcome].
//
// [Service.Preflight] stops after validation and never persists.
// [Service.Commit] runs every stage.
//
// # Commit Policies
//
// Under [PolicyBestEffort] a failed row never prevents the rows around it
// from being saved. Under [PolicyAtomic] any failure rolls back the whole
// batch and the saved rows are reported with DB008.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - VAL001-VAL008: field validation findings
//   - DUP001: project code already registered for the owner
//   - DB001-DB008: storage failures
//   - FILE001-FILE006: upload problems (size, format, empty)
//   - BAT001-BAT004: request shape problems (row cap, owner)
//   - IMP001: import capacity exhausted
//
// Errors that map to no code (ERR000) are system errors.
package core
