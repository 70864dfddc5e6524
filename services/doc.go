// Package services wires the platform together: the fragmentation engine,
// transport coordinator, protocol-order authenticator and reconstruction
// engine behind one facade, plus YAML configuration, Prometheus metrics and
// the optional PostgreSQL forensic audit store.
//
// The facade owns the single source of truth for the recovery threshold k:
// it lives on the fragment set record, and missions and reconstruction both
// read it from there.
package services
