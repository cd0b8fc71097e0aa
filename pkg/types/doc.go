/*
Package types defines WaffleMaker's domain model.

It holds the shapes that flow between the Planner, the JobQueue, the
Reconciler, and the Registry: Deployment/Change (the reconciled history of
source commits), Service/ServiceSpec (the declarative unit and its parsed
TOML), Container and Lease (the runtime facts the Registry persists), and
Job (the unit of work workers execute).

None of these types carry behavior beyond small accessors; validation lives
in pkg/spec, persistence in pkg/storage, and the state machine that drives
them in pkg/reconciler.
*/
package types
