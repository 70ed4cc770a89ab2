// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package patch

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// setModTime sets both the access and modification time of path to the
// nanosecond timestamp mtimeNS.
func setModTime(path string, mtimeNS int64) error {
	t := time.Unix(0, mtimeNS)
	if err := os.Chtimes(path, t, t); err != nil {
		return errors.Wrap(err, "patch: failed setting modification time")
	}
	return nil
}

// CreateOrAppend appends data to path, creating it if necessary. If a
// directory exists at path it is removed first, mirroring
// create_or_append_file's tolerance for a conflicting entry.
func CreateOrAppend(path string, data []byte) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap(err, "patch: failed removing conflicting directory")
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "patch: failed opening file for append")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "patch: failed appending to file")
	}
	return nil
}

// UpdateModTime sets path's modification time to the nanosecond timestamp
// mtimeNS. Exported for the finish_create_file and update_file_mtime
// endpoints.
func UpdateModTime(path string, mtimeNS int64) error {
	return setModTime(path, mtimeNS)
}
