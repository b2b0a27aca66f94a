// Package processor holds the opaque compute capability a job buys. The
// broker treats it as stateless: safe to call concurrently for distinct
// jobs, at most once per job.
package processor

import "context"

// Processor executes the paid work for a job.
type Processor interface {
	Execute(ctx context.Context, input string) (string, error)
}
