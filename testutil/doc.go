// Package testutil provides shared test fixtures: a pool of well-separated
// real-world destinations, document generators and option-func builders for
// transport configuration. Tests for the coordinator itself keep local
// fixtures to avoid an import cycle.
package testutil
