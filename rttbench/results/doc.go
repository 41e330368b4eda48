// Package results accumulates benchmark measurements and reduces them to
// per-configuration averages.
//
// A SampleSet is owned by a single benchmark run. It keeps every raw
// Measurement plus a count of lost samples, grouped by (kind, size) in the
// order the configurations were first seen.
package results
