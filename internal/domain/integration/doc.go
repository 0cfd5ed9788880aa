// Package integration contains the Integration bounded context.
// This context moves master data from the Kinetic ERP into the commerce platform
// through a staging store.
//
// Key concepts:
//   - StagingRecord: one ERP entity row awaiting, or having undergone, sync to the commerce platform
//   - RunRecord: the process-control log row of one execution of a named task
//   - AttributeMapping: translation of ERP field keys to commerce attribute codes, with option id caches
//   - Outcome: the per-record result of an apply attempt, written back to staging
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
