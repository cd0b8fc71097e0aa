/*
Package storage provides WaffleMaker's Registry: the relational store of
deployments, services, containers, and leases (§6).

PostgresRegistry implements Registry on top of Postgres via jmoiron/sqlx and
lib/pq, storing each Service's parsed spec as a JSONB column. It is the only
durable shared state in the system; every cross-component coordination (the
Planner's replay on restart, the LeaseManager's existence checks, the
Reconciler's atomic Commit) flows through it.

Schema:

	deployments(commit PK, created_at)
	changes(id, commit FK, path, action)
	services(id PK, domain, path, spec JSONB, created_at, updated_at)
	containers(service_id PK FK, runtime_id, image, status, created_at, updated_at)
	leases(service_id FK, id, expiration, ttl_ns; PK (service_id, id))

Deleting a service cascades to its container and lease rows, mirroring the
model invariant that a Lease can only reference an existing Service.
*/
package storage
