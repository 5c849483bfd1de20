// Package stage implements the four pipeline stages a dubbing job runs
// through: transcribe, translate, synthesize, compose. Each stage plans its
// chunks, executes single chunks against an external service or local tool,
// and merges ordered chunk results into the stage artifact.
package stage
