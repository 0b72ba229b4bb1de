// Package pipeline provides orchestration for the posture frame pipeline.
//
// It wires together parsing, ingest statistics, the classifier, session
// accounting, the clip recorder, and the overlay publisher into a single
// per-line callback for both live and replay use cases. The pipeline does
// not own domain logic; it delegates to the stage packages.
package pipeline
