// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpapi

import "github.com/c4milo/deltasync/fstree"

// wireTree renders an fstree.Snapshot into the nested JSON shape the wire
// protocol expects: a directory is a JSON object mapping entry name to
// either another such object or a leaf array. The leaf carries its own
// name as the first element even though it is also the enclosing object's
// key, mirroring the tuple shape of the distilled spec's data model
// exactly (a structural quirk of the original worth preserving rather
// than normalizing away).
func wireTree(name string, snap *fstree.Snapshot, checksum bool) interface{} {
	if snap.IsDir() {
		out := make(map[string]interface{}, len(snap.Children))
		for childName, child := range snap.Children {
			out[childName] = wireTree(childName, child, checksum)
		}
		return out
	}

	if checksum {
		return []interface{}{name, snap.File.Checksum}
	}
	return []interface{}{name, snap.File.Size, snap.File.ModTimeNS}
}
