// Package domain defines the core business types for the campaign execution
// engine.
//
// Types in this package are pure value objects with no behavior beyond
// validation and state-transition rules. They are the shared language between
// the lifecycle service, the workers, the metrics aggregator and the
// repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation and transition methods are allowed (pure functions on the type)
//   - Constants and enums belong here
package domain
