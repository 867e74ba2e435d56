package snapshot

import (
	"fmt"
	"path/filepath"

	"github.com/iambrandonn/docrun/internal/checksum"
)

// Reason says why a document has to be rendered again.
type Reason string

const (
	ReasonAdded         Reason = "added"
	ReasonChanged       Reason = "changed"
	ReasonDependency    Reason = "dependency changed"
	ReasonOutputMissing Reason = "output missing"
	ReasonRemoved       Reason = "removed"
	ReasonFresh         Reason = "fresh build"
)

// Change is a document that must be rendered.
type Change struct {
	Doc    Document
	Reason Reason
	// Stale is set when the previous build gave the document an environment
	// that must be purged before rendering.
	Stale bool
}

// Diff is the outcome of Compare.
type Diff struct {
	Render    []Change
	Removed   []Document
	Unchanged []Document
}

// Compare decides, for each scanned document, whether the build recorded in
// prev is still valid. A document is unchanged only when its own checksum,
// every recorded dependency under sourceRoot and its output under outputRoot
// are all as prev recorded them. Unchanged documents carry prev's dependency
// and output records forward.
func Compare(prev *Manifest, current []Document, sourceRoot, outputRoot string) (Diff, error) {
	var diff Diff

	seen := make(map[string]bool, len(current))
	for _, doc := range current {
		seen[doc.ID] = true

		old, ok := prev.Lookup(doc.ID)
		if !ok {
			diff.Render = append(diff.Render, Change{Doc: doc, Reason: ReasonAdded})
			continue
		}
		if old.SHA256 != doc.SHA256 {
			diff.Render = append(diff.Render, Change{Doc: doc, Reason: ReasonChanged, Stale: true})
			continue
		}

		depsOK, err := dependenciesMatch(sourceRoot, old.Dependencies)
		if err != nil {
			return Diff{}, fmt.Errorf("failed to check dependencies of %s: %w", doc.Path, err)
		}
		if !depsOK {
			diff.Render = append(diff.Render, Change{Doc: doc, Reason: ReasonDependency, Stale: true})
			continue
		}

		if old.Output == nil {
			diff.Render = append(diff.Render, Change{Doc: doc, Reason: ReasonOutputMissing, Stale: true})
			continue
		}
		outOK, err := checksumMatches(filepath.Join(outputRoot, filepath.FromSlash(old.Output.Path)), old.Output.SHA256)
		if err != nil {
			return Diff{}, fmt.Errorf("failed to check output of %s: %w", doc.Path, err)
		}
		if !outOK {
			diff.Render = append(diff.Render, Change{Doc: doc, Reason: ReasonOutputMissing, Stale: true})
			continue
		}

		doc.Dependencies = old.Dependencies
		doc.Output = old.Output
		diff.Unchanged = append(diff.Unchanged, doc)
	}

	if prev != nil {
		for _, old := range prev.Documents {
			if !seen[old.ID] {
				diff.Removed = append(diff.Removed, old)
			}
		}
	}

	return diff, nil
}

func dependenciesMatch(sourceRoot string, deps []Dependency) (bool, error) {
	for _, dep := range deps {
		ok, err := checksumMatches(filepath.Join(sourceRoot, filepath.FromSlash(dep.Path)), dep.SHA256)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// checksumMatches treats a missing record as a mismatch; a record that
// cannot be parsed means the manifest is damaged.
func checksumMatches(path, sum string) (bool, error) {
	if sum == "" {
		return false, nil
	}
	return checksum.Matches(path, sum)
}
