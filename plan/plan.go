// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package plan computes the ordered action plan that brings a destination
// tree into agreement with a source tree.
package plan

import (
	"path"

	"github.com/c4milo/deltasync/fstree"
)

// Kind tags an Action's intent.
type Kind int

const (
	KindDelete Kind = iota
	KindCreateDirectory
	KindCreateFile
	KindPatchFile
)

func (k Kind) String() string {
	switch k {
	case KindDelete:
		return "Delete"
	case KindCreateDirectory:
		return "CreateDirectory"
	case KindCreateFile:
		return "CreateFile"
	case KindPatchFile:
		return "PatchFile"
	default:
		return "Unknown"
	}
}

// Action is one step of the plan, addressed by a destination-relative path.
type Action struct {
	Kind Kind
	Rel  string
}

// Plan is the ordered sequence of actions a driver executes: all deletes,
// then all directory creations, then all whole-file creations, then all
// patches, preserving the planner's emission order within each group.
type Plan []Action

// Diff compares source against dest and returns the ordered Plan that
// reconciles dest to match source. Leaf identifiers are compared as they
// stand in the two snapshots, so both must have been built with the same
// fstree.IdentifierFunc kind for the comparison to be meaningful.
func Diff(source, dest *fstree.Snapshot) Plan {
	var deletes, mkdirs, creates, patches []Action
	diff("", source, dest, &deletes, &mkdirs, &creates, &patches)

	result := make(Plan, 0, len(deletes)+len(mkdirs)+len(creates)+len(patches))
	result = append(result, deletes...)
	result = append(result, mkdirs...)
	result = append(result, creates...)
	result = append(result, patches...)
	return result
}

// diff walks source depth-first, per §4.3: directories recurse and emit a
// Delete for every destination child name absent on the source side;
// files emit CreateFile/PatchFile/nothing depending on dest's shape at the
// same name. leftover destination-only subtrees (dest has no source
// counterpart at all) are deleted without recursing into them, mirroring
// the original's leftover_destination_entries collection.
func diff(rel string, source, dest *fstree.Snapshot, deletes, mkdirs, creates, patches *[]Action) {
	if source.IsDir() {
		if dest.IsDir() {
			for name, sourceChild := range source.Children {
				childRel := path.Join(rel, name)
				destChild := dest.Children[name]
				diff(childRel, sourceChild, destChild, deletes, mkdirs, creates, patches)
			}
			for name := range dest.Children {
				if _, ok := source.Children[name]; !ok {
					*deletes = append(*deletes, Action{Kind: KindDelete, Rel: path.Join(rel, name)})
				}
			}
			return
		}

		// dest is a file (deleted first), or absent: create the directory,
		// then treat every source child as if dest were empty.
		if rel != "" {
			if dest != nil {
				*deletes = append(*deletes, Action{Kind: KindDelete, Rel: rel})
			}
			*mkdirs = append(*mkdirs, Action{Kind: KindCreateDirectory, Rel: rel})
		}
		for name, sourceChild := range source.Children {
			diff(path.Join(rel, name), sourceChild, nil, deletes, mkdirs, creates, patches)
		}
		return
	}

	// source is a file.
	switch {
	case dest == nil:
		*creates = append(*creates, Action{Kind: KindCreateFile, Rel: rel})
	case dest.IsDir():
		*deletes = append(*deletes, Action{Kind: KindDelete, Rel: rel})
		*creates = append(*creates, Action{Kind: KindCreateFile, Rel: rel})
	case source.File.Equal(dest.File):
		// identical, nothing to do
	default:
		*patches = append(*patches, Action{Kind: KindPatchFile, Rel: rel})
	}
}
