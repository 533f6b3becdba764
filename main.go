// The main package for the cityscope executable.
//
// A run lists the configured portal pages, asks the record store which documents are
// already ingested, and walks at most pipeline.max_candidates new documents one at a time:
// fetch, PDF text extraction, a paced and retried Gemini call, validation, and insert.
// Per-document failures are counted in the run report; only an unreachable record store,
// a configuration error, or cancellation ends the process with a non-zero status.
//
// Configure with a YAML file (--config) or CITYSCOPE_* environment variables, for example
// CITYSCOPE_GENERATIVE_API_KEY and CITYSCOPE_DB_DSN. Run `cityscope migrate` once before
// the first ingest.
package main

import (
	"github.com/JakeFAU/cityscope-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
