// Package harness provides a conformance testing framework for the tracker.
//
// A scenario is a YAML file describing a schema, an initial seed, a tracked
// request, and a sequence of writes with expected observations. The harness
// runs each scenario against a fresh in-memory database and records every
// notification cycle into a deterministic trace.
//
// Traces are compared against golden files with goldie, so the exact cycle
// sequence (before rows, after rows, edit script) of a scenario is pinned
// down in testdata/golden/.
package harness
