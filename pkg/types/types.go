// Package types holds the data structures shared across the symfarm
// pipeline stages.
package types

import (
	"github.com/arthur-debert/symfarm/pkg/override"
	"github.com/arthur-debert/symfarm/pkg/tags"
)

// Song is one accepted source file: its resolved attribute set plus the
// directives produced by override evaluation. Never mutated after override
// evaluation completes, except for the album-level tag writeback during
// grouping.
type Song struct {
	// AbsPath is the absolute path of the source file.
	AbsPath string

	// Attrs is the override-resolved attribute set.
	Attrs tags.AttributeSet

	// Directives steer the path planner.
	Directives override.Directives
}

// LinkPlan is one desired symlink: a target path relative to the link
// directory mapping to an absolute source path.
type LinkPlan struct {
	Target string
	Source string
}

// Report aggregates the outcome counts of one run. Per-file failures are
// counted here, never silently dropped.
type Report struct {
	Scanned       int // source files considered
	AlreadyLinked int // skipped because a valid link already exists
	NonMusic      int // filtered out by valid_files
	Ignored       int // skipped by an ignore directive
	Failed        int // tag read / resolution / filesystem failures
	Collisions    int // songs whose target was already planned

	Created   int // links created
	Updated   int // links replaced because they were stale or broken
	Unchanged int // links already correct

	RemovedLinks int // broken links removed by clean
	RemovedDirs  int // empty directories removed by clean
}

// Merge adds the counts of another report into this one.
func (r *Report) Merge(o Report) {
	r.Scanned += o.Scanned
	r.AlreadyLinked += o.AlreadyLinked
	r.NonMusic += o.NonMusic
	r.Ignored += o.Ignored
	r.Failed += o.Failed
	r.Collisions += o.Collisions
	r.Created += o.Created
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.RemovedLinks += o.RemovedLinks
	r.RemovedDirs += o.RemovedDirs
}
