// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package httpapi

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/c4milo/deltasync/blocksum"
	"github.com/c4milo/deltasync/fstree"
	"github.com/c4milo/deltasync/patch"
)

// Server holds the receiver's fixed root directory and the state of any
// in-flight patches, which must survive across the several HTTP requests
// that make up one file's create_or_append_patch/finish_patch sequence.
// The root is bound once at construction and is never rebound: the
// original's iOS directory-picker integration that would rebind it is
// platform UI, out of scope here (see ios_select_directory below).
type Server struct {
	root   string
	logger zerolog.Logger

	mu       sync.Mutex
	appliers map[string]*patch.Applier
}

// NewServer constructs a Server rooted at root. root must already exist.
func NewServer(root string, logger zerolog.Logger) *Server {
	return &Server{
		root:     root,
		logger:   logger.With().Str("component", "httpapi").Logger(),
		appliers: make(map[string]*patch.Applier),
	}
}

// NewRouter builds the chi router for the receiver's control surface,
// grounded on the corpus's Routes() chi.Router handler-struct pattern.
func (s *Server) NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/directory_tree_size_and_mtime", s.handleDirectoryTreeSizeAndMTime)
	r.Get("/directory_tree_checksum", s.handleDirectoryTreeChecksum)
	r.Get("/block_checksums/*", s.handleBlockChecksums)
	r.Post("/create_directory/*", s.handleCreateDirectory)
	r.Post("/create_or_append_file/*", s.handleCreateOrAppendFile)
	r.Post("/finish_create_file/*", s.handleFinishCreateFile)
	r.Post("/create_or_append_patch/{suffix}/*", s.handleCreateOrAppendPatch)
	r.Post("/finish_patch/{suffix}/*", s.handleFinishPatch)
	r.Post("/update_file_mtime/*", s.handleUpdateFileMtime)
	r.Post("/delete_file_or_directory/*", s.handleDeleteFileOrDirectory)
	r.Post("/ios_select_directory", s.handleIOSSelectDirectory)

	return r
}

func (s *Server) rel(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := fstree.SafeJoin(s.root, s.rel(r))
	if err != nil {
		s.logger.Warn().Err(err).Str("rel", s.rel(r)).Msg("refused path escape")
		writeError(w, err.Error())
		return "", false
	}
	return path, true
}

func (s *Server) handleDirectoryTreeSizeAndMTime(w http.ResponseWriter, r *http.Request) {
	s.serveTree(w, r, fstree.SizeMTimeIdentifier, false)
}

func (s *Server) handleDirectoryTreeChecksum(w http.ResponseWriter, r *http.Request) {
	s.serveTree(w, r, fstree.ChecksumIdentifier, true)
}

func (s *Server) serveTree(w http.ResponseWriter, r *http.Request, identify fstree.IdentifierFunc, checksum bool) {
	snap, err := fstree.Walk(r.Context(), fstree.OSFS{}, s.root, identify)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed walking tree")
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, wireTree("", snap, checksum))
}

func (s *Server) handleBlockChecksums(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		writeSuccess(w, [][]interface{}{{}, {}})
		return
	}
	if err != nil {
		writeError(w, err.Error())
		return
	}
	defer f.Close()

	blocks, err := blocksum.Compute(r.Context(), f)
	if err != nil {
		writeError(w, err.Error())
		return
	}

	weak := []uint32{}
	strong := []string{}
	for b := range blocks {
		if b.Error != nil {
			writeError(w, b.Error.Error())
			return
		}
		weak = append(weak, b.Weak)
		strong = append(strong, b.Strong)
	}
	writeSuccess(w, []interface{}{weak, strong})
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		if err := os.Remove(path); err != nil {
			writeError(w, err.Error())
			return
		}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleCreateOrAppendFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, patch.MaxChunkSize))
	if err != nil {
		writeError(w, err.Error())
		return
	}
	if err := patch.CreateOrAppend(path, body); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleFinishCreateFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	mtimeNS, ok := readMTime(w, r)
	if !ok {
		return
	}
	if err := patch.UpdateModTime(path, mtimeNS); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleCreateOrAppendPatch(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	suffix := chi.URLParam(r, "suffix")
	key := suffix + "|" + path

	body, err := io.ReadAll(io.LimitReader(r.Body, patch.MaxChunkSize))
	if err != nil {
		writeError(w, err.Error())
		return
	}

	s.mu.Lock()
	applier, exists := s.appliers[key]
	if !exists {
		applier, err = patch.NewApplier(path, path+"."+suffix)
		if err != nil {
			s.mu.Unlock()
			writeError(w, err.Error())
			return
		}
		s.appliers[key] = applier
	}
	s.mu.Unlock()

	if err := applier.Apply(body); err != nil {
		s.mu.Lock()
		delete(s.appliers, key)
		s.mu.Unlock()
		applier.Abort()
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleFinishPatch(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	suffix := chi.URLParam(r, "suffix")
	key := suffix + "|" + path

	mtimeNS, ok := readMTime(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	applier, exists := s.appliers[key]
	delete(s.appliers, key)
	s.mu.Unlock()

	if !exists {
		writeError(w, "no in-flight patch for this suffix")
		return
	}

	if err := applier.Finish(path, mtimeNS); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleUpdateFileMtime(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	mtimeNS, ok := readMTime(w, r)
	if !ok {
		return
	}
	if err := patch.UpdateModTime(path, mtimeNS); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleDeleteFileOrDirectory(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		writeError(w, err.Error())
		return
	}
	writeSuccess(w, nil)
}

// handleIOSSelectDirectory answers the platform-specific directory-picker
// control call with an error result. The endpoint is kept on the wire so
// a sender that calls it unconditionally does not 404; the receiver's
// root is fixed at construction and is never rebound.
func (s *Server) handleIOSSelectDirectory(w http.ResponseWriter, r *http.Request) {
	writeError(w, "directory selection is not supported on this platform")
}

func readMTime(w http.ResponseWriter, r *http.Request) (int64, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64))
	if err != nil {
		writeError(w, err.Error())
		return 0, false
	}
	mtimeNS, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		writeError(w, "invalid modification time: "+err.Error())
		return 0, false
	}
	return mtimeNS, true
}
