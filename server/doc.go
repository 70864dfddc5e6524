// Package server exposes the platform over HTTP: a chi router with the
// fragment, mission, agent and authentication operations, plus the standard
// health endpoints, drain control and a separate metrics listener.
package server
