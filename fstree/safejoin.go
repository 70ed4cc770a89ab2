// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fstree

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrPathEscape is returned by SafeJoin when a network-supplied relative
// path, after decoding and normalization, would resolve outside root.
var ErrPathEscape = errors.New("fstree: path escapes root")

// SafeJoin URL-decodes rel, joins it to root, and normalizes the result
// (collapsing "." and ".." segments). It refuses any result that does not
// share the normalized root as a path-component prefix, returning
// ErrPathEscape. Every mutating HTTP handler must call this before
// touching the filesystem.
func SafeJoin(root, rel string) (string, error) {
	decoded, err := url.PathUnescape(rel)
	if err != nil {
		return "", errors.Wrap(err, "fstree: failed decoding path")
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, decoded)

	if !isWithin(cleanRoot, joined) {
		return "", ErrPathEscape
	}
	return joined, nil
}

// isWithin reports whether candidate is root itself or a descendant of
// root, compared component-by-component rather than as a raw string
// prefix (so "/root-evil" is not mistaken for a child of "/root").
func isWithin(root, candidate string) bool {
	if candidate == root {
		return true
	}

	rootParts := strings.Split(root, string(filepath.Separator))
	candidateParts := strings.Split(candidate, string(filepath.Separator))
	if len(candidateParts) < len(rootParts) {
		return false
	}
	for i, part := range rootParts {
		if candidateParts[i] != part {
			return false
		}
	}
	return true
}
