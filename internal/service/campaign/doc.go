// Package campaign implements the campaign lifecycle.
//
// Submit validates a request, derives priority and estimates, and either
// enqueues the campaign on the dispatch queue or parks it on the deferred
// scheduler. Execute is called by a dispatch worker: it fans out one
// platform executor per target platform, folds their results into a
// terminal status, archives the campaign and publishes the outcome.
//
// The service depends on interfaces defined in this package. The active
// working set lives in repository/memory; archived executions can also be
// written to repository/postgres through a HistorySink.
package campaign
