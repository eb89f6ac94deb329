// Package core holds module tracking logic independent of any transport.
// Web handlers, the CLI and tests all drive the same Service.
//
// # Import pipeline
//
// Every import goes through the same two stages:
//
//  1. The Field Mapper ([MapRows], [MapText], [MapPDFText]) turns rows or
//     text lines into [Candidate] patches. Header labels are resolved through
//     a synonym table and legacy columns are adapted here.
//  2. The [Reconciler] loads the stored modules, folds candidates by
//     moduleNo, diffs each against the stored record and issues only the
//     writes that change something.
//
// Column imports skip the mapper's header handling and pair pasted values
// either with pasted module numbers ([Reconciler.ReconcileKeyedColumn]) or
// with the stored modules in order ([Reconciler.ReconcileAlignedColumn]).
//
// # Imports as jobs
//
// [Service.StartImport] runs an import in the background and returns an id.
// Progress is broadcast through [Service.SubscribeProgress] and the final
// [ImportResult] is available from [Service.GetImportResult] for a few
// minutes after completion. One import runs at a time; a second request
// fails with [ErrImportInProgress].
//
// # Storage
//
// Persistence sits behind [RecordStore]. Stores that can apply a group of
// writes in one transaction also implement [Batcher], which the reconciler
// uses for updates.
package core
