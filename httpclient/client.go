// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package httpclient implements the sender-side HTTP client that drives a
// plan against a receiver's control surface.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/c4milo/deltasync/blocksum"
	"github.com/c4milo/deltasync/fstree"
	"github.com/c4milo/deltasync/patch"
)

// Client calls a receiver's HTTP control surface, grounded on the corpus's
// request(ctx, method, path, body, result) helper, adapted to raw-byte
// request bodies and the {"status":..., "result":...} response envelope
// instead of JSON request bodies and an error-code envelope.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New constructs a Client targeting baseURL (e.g. "http://host:port").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// APIError is returned when the receiver answers with {"status":"error"}.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return "httpclient: " + e.Message }

func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "httpclient: failed building request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "httpclient: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Errorf("httpclient: endpoint not found: %s", path)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "httpclient: failed reading response")
	}

	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "httpclient: failed decoding response envelope")
	}
	if e.Status != "success" {
		var message string
		_ = json.Unmarshal(e.Result, &message)
		return nil, &APIError{Message: message}
	}
	return e.Result, nil
}

// DirectoryTree fetches the destination's tree snapshot, using whichever
// identifier endpoint matches checksum.
func (c *Client) DirectoryTree(ctx context.Context, checksum bool) (*fstree.Snapshot, error) {
	path := "/directory_tree_size_and_mtime"
	if checksum {
		path = "/directory_tree_checksum"
	}

	result, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var wire interface{}
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, errors.Wrap(err, "httpclient: failed decoding directory tree")
	}
	return decodeWireTree(wire, checksum), nil
}

// decodeWireTree is the inverse of httpapi's wireTree: a JSON object
// becomes a directory snapshot; a two/three-element array becomes a file
// leaf, discarding the redundant leading name element.
func decodeWireTree(wire interface{}, checksum bool) *fstree.Snapshot {
	switch v := wire.(type) {
	case map[string]interface{}:
		children := make(map[string]*fstree.Snapshot, len(v))
		for name, child := range v {
			children[name] = decodeWireTree(child, checksum)
		}
		return &fstree.Snapshot{Children: children}
	case []interface{}:
		if checksum {
			return &fstree.Snapshot{File: &fstree.FileIdentifier{Checksum: toString(v[1])}}
		}
		return &fstree.Snapshot{File: &fstree.FileIdentifier{
			Size:      int64(toFloat(v[1])),
			ModTimeNS: int64(toFloat(v[2])),
		}}
	default:
		return &fstree.Snapshot{Children: map[string]*fstree.Snapshot{}}
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// BlockChecksums fetches the destination's block-checksum table for rel,
// returning an empty table if the file is absent there.
func (c *Client) BlockChecksums(ctx context.Context, rel string) (blocksum.LookupTable, error) {
	result, err := c.request(ctx, http.MethodGet, "/block_checksums/"+encodeRel(rel), nil)
	if err != nil {
		return nil, err
	}

	var pair [2][]interface{}
	if err := json.Unmarshal(result, &pair); err != nil {
		return nil, errors.Wrap(err, "httpclient: failed decoding block checksums")
	}

	table := make(blocksum.LookupTable)
	for i := range pair[0] {
		weak := uint32(toFloat(pair[0][i]))
		strong := toString(pair[1][i])
		table[weak] = append(table[weak], blocksum.Block{Index: uint64(i), Weak: weak, Strong: strong})
	}
	return table, nil
}

// CreateDirectory calls /create_directory/<rel>.
func (c *Client) CreateDirectory(ctx context.Context, rel string) error {
	_, err := c.request(ctx, http.MethodPost, "/create_directory/"+encodeRel(rel), nil)
	return err
}

// CreateFile uploads the file read from content in patch.MaxChunkSize
// bounded chunks, issuing one create_or_append_file call per chunk, then
// finishes it with the source's modification time. Streaming in bounded
// chunks keeps the sender's resident memory to one chunk buffer regardless
// of file size, and keeps each request within the receiver's per-request
// limit.
func (c *Client) CreateFile(ctx context.Context, rel string, content io.Reader, mtimeNS int64) error {
	buf := make([]byte, patch.MaxChunkSize)
	uploaded := false
	for {
		n, readErr := io.ReadFull(content, buf)
		if n > 0 || !uploaded {
			path := "/create_or_append_file/" + encodeRel(rel)
			if _, err := c.request(ctx, http.MethodPost, path, bytes.NewReader(buf[:n])); err != nil {
				return err
			}
			uploaded = true
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return errors.Wrap(readErr, "httpclient: failed reading source file")
		}
	}

	_, err := c.request(ctx, http.MethodPost, "/finish_create_file/"+encodeRel(rel), bytes.NewReader([]byte(strconv.FormatInt(mtimeNS, 10))))
	return err
}

// PatchFile drives a full create_or_append_patch/.../finish_patch
// sequence for one file, streaming chunks as produced by the caller's
// patch.Frame channel. suffix is generated fresh per file with
// github.com/google/uuid, guaranteeing the receiver's side file cannot
// collide with a stray leftover from a prior aborted sync.
func (c *Client) PatchFile(ctx context.Context, rel string, chunks <-chan []byte, mtimeNS int64) error {
	suffix := uuid.NewString()

	sent := false
	for chunk := range chunks {
		path := fmt.Sprintf("/create_or_append_patch/%s/%s", suffix, encodeRel(rel))
		if _, err := c.request(ctx, http.MethodPost, path, bytes.NewReader(chunk)); err != nil {
			return err
		}
		sent = true
	}
	if !sent {
		// An empty patch stream still opens the side file, so finish_patch
		// leaves a zero-byte file at rel.
		path := fmt.Sprintf("/create_or_append_patch/%s/%s", suffix, encodeRel(rel))
		if _, err := c.request(ctx, http.MethodPost, path, bytes.NewReader(nil)); err != nil {
			return err
		}
	}

	path := fmt.Sprintf("/finish_patch/%s/%s", suffix, encodeRel(rel))
	_, err := c.request(ctx, http.MethodPost, path, bytes.NewReader([]byte(strconv.FormatInt(mtimeNS, 10))))
	return err
}

// UpdateFileMTime calls /update_file_mtime/<rel>.
func (c *Client) UpdateFileMTime(ctx context.Context, rel string, mtimeNS int64) error {
	_, err := c.request(ctx, http.MethodPost, "/update_file_mtime/"+encodeRel(rel), bytes.NewReader([]byte(strconv.FormatInt(mtimeNS, 10))))
	return err
}

// Delete calls /delete_file_or_directory/<rel>.
func (c *Client) Delete(ctx context.Context, rel string) error {
	_, err := c.request(ctx, http.MethodPost, "/delete_file_or_directory/"+encodeRel(rel), nil)
	return err
}

// encodeRel percent-encodes each path segment independently so a literal
// "/" inside a name is never mistaken for a path separator, while the
// segment separators themselves survive untouched for the receiver's
// wildcard route to split on.
func encodeRel(rel string) string {
	segments := splitPath(rel)
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return joinPath(segments)
}

func splitPath(rel string) []string {
	if rel == "" {
		return nil
	}
	var segments []string
	start := 0
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			segments = append(segments, rel[start:i])
			start = i + 1
		}
	}
	segments = append(segments, rel[start:])
	return segments
}

func joinPath(segments []string) string {
	out := ""
	for i, seg := range segments {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}
