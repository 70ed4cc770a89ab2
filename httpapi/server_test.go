// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpapi

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hooklift/assert"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	dir, err := ioutil.TempDir("", "httpapi")
	assert.Ok(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv := NewServer(dir, zerolog.Nop())
	return httptest.NewServer(srv.NewRouter()), dir
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	var e envelope
	assert.Ok(t, json.NewDecoder(resp.Body).Decode(&e))
	resp.Body.Close()
	return e
}

func TestCreateDirectoryAndDeleteRoundTrip(t *testing.T) {
	ts, dir := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/create_directory/sub/nested", "application/octet-stream", nil)
	assert.Ok(t, err)
	e := decodeEnvelope(t, resp)
	assert.Equals(t, "success", e.Status)

	info, err := os.Stat(filepath.Join(dir, "sub", "nested"))
	assert.Ok(t, err)
	assert.Cond(t, info.IsDir(), "expected nested directory to exist")

	resp, err = http.Post(ts.URL+"/delete_file_or_directory/sub", "application/octet-stream", nil)
	assert.Ok(t, err)
	e = decodeEnvelope(t, resp)
	assert.Equals(t, "success", e.Status)

	_, err = os.Stat(filepath.Join(dir, "sub"))
	assert.Cond(t, os.IsNotExist(err), "expected sub to be removed")
}

func TestPathEscapeRefused(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/delete_file_or_directory/../../etc", "application/octet-stream", nil)
	assert.Ok(t, err)
	e := decodeEnvelope(t, resp)
	assert.Equals(t, "error", e.Status)
}

func TestCreateOrAppendFileThenFinish(t *testing.T) {
	ts, dir := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/create_or_append_file/a.txt", "application/octet-stream", bytes.NewReader([]byte("hello")))
	assert.Ok(t, err)
	assert.Equals(t, "success", decodeEnvelope(t, resp).Status)

	resp, err = http.Post(ts.URL+"/finish_create_file/a.txt", "text/plain", bytes.NewReader([]byte("123456789")))
	assert.Ok(t, err)
	assert.Equals(t, "success", decodeEnvelope(t, resp).Status)

	content, err := ioutil.ReadFile(filepath.Join(dir, "a.txt"))
	assert.Ok(t, err)
	assert.Equals(t, []byte("hello"), content)

	info, err := os.Stat(filepath.Join(dir, "a.txt"))
	assert.Ok(t, err)
	assert.Equals(t, int64(123456789), info.ModTime().UnixNano())
}

func TestBlockChecksumsEmptyForAbsentFile(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/block_checksums/missing.bin")
	assert.Ok(t, err)
	e := decodeEnvelope(t, resp)
	assert.Equals(t, "success", e.Status)

	pair, ok := e.Result.([]interface{})
	assert.Cond(t, ok, "expected result to decode as a two-element array")
	assert.Equals(t, 2, len(pair))
}

// TestPatchSplitLiteralAcrossHTTPRequests exercises §8 scenario 6 over an
// actual HTTP round trip: a chunk ends mid-literal-payload, split across
// two separate create_or_append_patch requests for the same suffix.
func TestPatchSplitLiteralAcrossHTTPRequests(t *testing.T) {
	ts, dir := newTestServer(t)
	defer ts.Close()

	oldPath := filepath.Join(dir, "f.bin")
	assert.Ok(t, ioutil.WriteFile(oldPath, []byte("0123456789"), 0644))

	suffix := "testsuffix"

	var header []byte
	header = appendInt64Test(header, 5)
	first := append(append([]byte{}, header...), []byte("abc")...)

	resp, err := http.Post(ts.URL+"/create_or_append_patch/"+suffix+"/f.bin", "application/octet-stream", bytes.NewReader(first))
	assert.Ok(t, err)
	assert.Equals(t, "success", decodeEnvelope(t, resp).Status)

	resp, err = http.Post(ts.URL+"/create_or_append_patch/"+suffix+"/f.bin", "application/octet-stream", bytes.NewReader([]byte("de")))
	assert.Ok(t, err)
	assert.Equals(t, "success", decodeEnvelope(t, resp).Status)

	resp, err = http.Post(ts.URL+"/finish_patch/"+suffix+"/f.bin", "text/plain", bytes.NewReader([]byte(strconv.FormatInt(42, 10))))
	assert.Ok(t, err)
	assert.Equals(t, "success", decodeEnvelope(t, resp).Status)

	content, err := ioutil.ReadFile(oldPath)
	assert.Ok(t, err)
	assert.Equals(t, []byte("abcde"), content)
}

func appendInt64Test(b []byte, v int64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(b, tmp[:]...)
}

func TestIOSSelectDirectoryReturnsError(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ios_select_directory", "application/octet-stream", nil)
	assert.Ok(t, err)
	e := decodeEnvelope(t, resp)
	assert.Equals(t, "error", e.Status)
}
