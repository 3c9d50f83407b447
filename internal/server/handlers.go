package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/decode"
	"example.com/ad2cpgate/internal/objstore"
	"example.com/ad2cpgate/internal/report"
)

// Server coordinates HTTP handlers and manages uploads and the artifacts
// produced by decode requests.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	concurrency int
	decoder     ad2cp.Options
	store       *objstore.Store
	runLog      *common.RunLog
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of uploads and generated files for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(opts.StorageDir, "ad2cpd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		concurrency: opts.Concurrency,
		decoder:     opts.Decoder,
		store:       opts.Store,
	}
	if opts.RunLog != "" {
		s.runLog = common.NewRunLog(opts.RunLog)
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	id := randomID()
	art := Artifact{
		ID:          id,
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[id] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

// resolveInput maps an artifact id, an s3:// location or a local path to the
// location a reader opens.
func (s *Server) resolveInput(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty input")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, nil
	}
	if objstore.IsURL(token) {
		if s.store == nil {
			return "", fmt.Errorf("%s: no object store configured", token)
		}
		return token, nil
	}
	abs, err := filepath.Abs(token)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "artifacts": len(s.listArtifacts())})
}

type indexRecord struct {
	Type   string  `json:"type"`
	Offset int64   `json:"offset"`
	ID     string  `json:"id"`
	Size   uint32  `json:"size"`
	Ens    *uint32 `json:"ensemble,omitempty"`
}

type indexSummary struct {
	Type      string         `json:"type"`
	Input     string         `json:"input"`
	ByteOrder string         `json:"byteOrder"`
	Bytes     int64          `json:"bytes"`
	Records   int            `json:"records"`
	Ensembles int            `json:"ensembles"`
	Boundary  string         `json:"boundary"`
	CacheHit  bool           `json:"cacheHit"`
	Truncated bool           `json:"truncated"`
	IDs       map[string]int `json:"ids"`
	Configs   map[string]any `json:"configs"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	input, err := s.resolveInput(q.Get("input"))
	if err != nil {
		http.Error(w, fmt.Sprintf("input resolve: %v", err), http.StatusBadRequest)
		return
	}
	opts, err := s.requestOptions(q.Get("boundary"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rd, err := decode.Open(r.Context(), input, opts, s.store)
	if err != nil {
		http.Error(w, fmt.Sprintf("open: %v", err), statusFor(err))
		return
	}
	defer rd.Close()
	idx := rd.Index()
	summary := indexSummary{
		Type:      "summary",
		Input:     q.Get("input"),
		ByteOrder: rd.ByteOrder().String(),
		Bytes:     idx.Size,
		Records:   len(idx.Entries),
		Ensembles: rd.NumEnsembles(),
		Boundary:  rd.Policy().Name(),
		CacheHit:  rd.CacheHit(),
		Truncated: idx.Truncated(),
		IDs:       make(map[string]int),
		Configs:   make(map[string]any),
	}
	for _, id := range idx.IDs() {
		summary.IDs[fmt.Sprintf("0x%02X", id)] = idx.Count(id)
	}
	for id, cfg := range rd.Configs() {
		summary.Configs[fmt.Sprintf("0x%02X", id)] = map[string]any{
			"nbeams":    cfg.NBeams(),
			"ncells":    cfg.NCells(),
			"coord_sys": cfg.CoordSys(),
			"blocks":    cfg.Flags.Names(),
		}
	}

	if q.Get("stream") != "true" {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	writer := NewNDJSONWriter(w)
	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, e := range idx.Entries {
		rec := indexRecord{Type: "record", Offset: e.Offset, ID: fmt.Sprintf("0x%02X", e.ID), Size: e.Size}
		if e.HasEns {
			ens := e.Ens
			rec.Ens = &ens
		}
		if err := writer.WriteObject(rec); err != nil {
			common.Logf("index stream for %s: %v", input, err)
			return
		}
	}
	_ = writer.WriteObject(summary)
}

type decodeResult struct {
	Input     string         `json:"input"`
	Report    *report.Report `json:"report,omitempty"`
	Artifacts []ArtifactRef  `json:"artifacts,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Inputs   []string `json:"inputs"`
		Start    int      `json:"start"`
		Stop     *int     `json:"stop"`
		Boundary string   `json:"boundary"`
		Reduce   *bool    `json:"reduce"`
		PDF      bool     `json:"pdf"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Inputs) == 0 {
		http.Error(w, "inputs required", http.StatusBadRequest)
		return
	}
	opts, err := s.requestOptions(req.Boundary)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	paths := make([]string, len(req.Inputs))
	for i, in := range req.Inputs {
		if paths[i], err = s.resolveInput(in); err != nil {
			http.Error(w, fmt.Sprintf("resolve %s: %v", in, err), http.StatusBadRequest)
			return
		}
	}
	stop := -1
	if req.Stop != nil {
		stop = *req.Stop
	}

	results := make([]decodeResult, len(paths))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.concurrency)
	for i := range paths {
		g.Go(func() error {
			job := decode.Job{
				Input:      paths[i],
				Options:    opts,
				Store:      s.store,
				Start:      req.Start,
				Stop:       stop,
				SkipReduce: req.Reduce != nil && !*req.Reduce,
				Hash:       true,
			}
			out, err := decode.Run(ctx, job)
			s.appendRunLog(paths[i], out, err)
			results[i] = decodeResult{Input: req.Inputs[i]}
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Report = out.Report
			refs, err := s.saveReport(out.Report, req.PDF)
			if err != nil {
				return fmt.Errorf("save report for %s: %w", req.Inputs[i], err)
			}
			results[i].Artifacts = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Results []decodeResult `json:"results"`
	}{Results: results})
}

func (s *Server) saveReport(rep *report.Report, withPDF bool) ([]ArtifactRef, error) {
	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		return nil, err
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		return nil, err
	}
	art, err := s.addArtifact(jsonPath, "decode_report.json", "application/json", "report")
	if err != nil {
		return nil, err
	}
	refs := []ArtifactRef{toRef(art)}
	if !withPDF {
		return refs, nil
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		return nil, err
	}
	if err := report.SavePDF(rep, pdfPath); err != nil {
		return nil, err
	}
	art, err = s.addArtifact(pdfPath, "decode_report.pdf", "application/pdf", "report")
	if err != nil {
		return nil, err
	}
	return append(refs, toRef(art)), nil
}

func (s *Server) appendRunLog(input string, out *decode.Outcome, err error) {
	if s.runLog == nil {
		return
	}
	if lerr := s.runLog.Append(decode.RunEntry(input, out, err)); lerr != nil {
		common.Logf("run log %s: %v", s.runLog.Path(), lerr)
	}
}

// requestOptions applies a per-request boundary override to the server's
// decoder options.
func (s *Server) requestOptions(boundary string) (ad2cp.Options, error) {
	opts := s.decoder
	if strings.TrimSpace(boundary) == "" {
		return opts, nil
	}
	var leading byte
	if p, ok := opts.Policy.(ad2cp.LeadingRecordPolicy); ok {
		leading = p.ID
	}
	policy, err := ad2cp.PolicyByName(boundary, leading, opts.BurstIDs)
	if err != nil {
		return opts, err
	}
	opts.Policy = policy
	return opts, nil
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ad2cp.ErrFormat), errors.Is(err, ad2cp.ErrConfig), errors.Is(err, ad2cp.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, objstore.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
