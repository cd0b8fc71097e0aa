// Package log provides structured logging for WaffleMaker built on top of
// zerolog. It wraps a single global Logger plus a handful of helpers that
// attach the fields the rest of the codebase asks for repeatedly: the
// emitting component, a service id, a job id.
//
// # Usage
//
// Call Init once at startup, before any component logs:
//
//	log.Init(log.Config{
//		Level:      log.InfoLevel,
//		JSONOutput: true,
//	})
//
// With JSONOutput false, Init writes a human-readable console format
// instead (zerolog's ConsoleWriter), which is more convenient when running
// wafflemaker locally.
//
// # Component loggers
//
// Rather than passing context.Context around purely to carry logging
// fields, components derive a child logger once at construction time and
// hold onto it:
//
//	logger := log.WithComponent("reconciler")
//	logger.Info().Str("service_id", job.ServiceID).Msg("starting reconcile")
//
// WithServiceID and WithJobID do the same for the two identifiers that
// show up across nearly every log line in the planner, queue, and
// reconciler: the service a job concerns, and the job's own id. Both
// derive from the global Logger, not from a component logger; to carry a
// component and an id together, add the field to the component logger
// with With():
//
//	jobLogger := log.WithComponent("queue").With().Str("job_id", job.ID).Logger()
//
// # Package-level helpers
//
// Info, Debug, Warn, and Error log against the global Logger directly,
// for call sites (mostly in cmd/wafflemaker and package main-style glue)
// that don't have a component logger handy. Errorf is a thin
// convenience over Error for the common "static message plus an err"
// shape. None of these replace a derived component logger inside
// pkg/planner, pkg/queue, pkg/reconciler, pkg/lease, pkg/dns,
// pkg/secrets, pkg/storage, pkg/api, or pkg/webhook — those components
// should log through their own WithComponent logger so their lines are
// attributable at a glance.
//
// # Fatal
//
// Fatal logs at zerolog's fatal level and then calls os.Exit(1), same as the teacher's daemon entrypoint used for
// unrecoverable startup failures (a missing config file, a database that
// refuses to connect). It should never be called from inside a running
// reconcile loop or request handler — those report errors through their
// normal return paths instead.
package log
