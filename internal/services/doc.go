// Package services holds the shared failure taxonomy and context annotation
// helpers used by every external-service adapter.
//
// Adapters classify each failure with one of the exported sentinel markers
// (transient, rate limited, invalid input, fatal) so retry policy can stay in
// one place instead of being re-implemented per call site.
package services
