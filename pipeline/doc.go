// Package pipeline runs the upload side of an artifact save.
//
// A Pipeline uploads every local manifest entry with bounded concurrency and
// keeps a commit barrier per artifact: the before-commit hook runs only after
// all enqueued uploads for that artifact have finished, and the artifact is
// committed only after the hook succeeds. The outcome is delivered on the
// result channel registered with CommitArtifact.
//
// A Batcher coalesces the per-file prepare calls issued by concurrent uploads
// into batched backend requests, bounded by time and count windows and an
// optional rate limit.
package pipeline
