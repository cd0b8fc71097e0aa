// Package spec parses and validates a service's TOML definition into a
// types.ServiceSpec, and derives the identifiers (service id, external
// hostname) that hang off a service's path within the source tree.
package spec
