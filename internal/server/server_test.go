package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/samples"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	tmp := t.TempDir()
	srv, err := NewServer(Options{
		StorageDir:  filepath.Join(tmp, "storage"),
		Concurrency: 2,
		Decoder:     ad2cp.Options{Cache: &ad2cp.IndexCache{}},
		RunLog:      filepath.Join(tmp, "runs.jsonl"),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	ts := httptest.NewServer(NewRouter(srv))
	t.Cleanup(ts.Close)
	return ts, filepath.Join(tmp, "runs.jsonl")
}

func upload(t *testing.T, ts *httptest.Server, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()
	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func uploadSample(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	data, err := samples.DefaultSession().Build()
	if err != nil {
		t.Fatalf("build sample: %v", err)
	}
	resp := upload(t, ts, "sample.ad2cp", data)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, msg)
	}
	var out struct {
		Files []ArtifactRef `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if len(out.Files) != 1 || out.Files[0].Kind != "upload" {
		t.Fatalf("unexpected upload refs: %+v", out.Files)
	}
	return out.Files[0].ID
}

func TestHandleIndex(t *testing.T) {
	ts, _ := newTestServer(t)
	id := uploadSample(t, ts)

	resp, err := http.Get(ts.URL + "/index?input=" + id)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status %d", resp.StatusCode)
	}
	var summary indexSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Records != 14 || summary.Ensembles != 8 {
		t.Fatalf("records=%d ensembles=%d, want 14 and 8", summary.Records, summary.Ensembles)
	}
	if summary.IDs["0x15"] != 8 || summary.IDs["0x18"] != 4 || summary.IDs["0xA0"] != 1 {
		t.Fatalf("unexpected id counts: %v", summary.IDs)
	}
	if summary.ByteOrder != "LittleEndian" || summary.Boundary != "leading" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandleIndexStream(t *testing.T) {
	ts, _ := newTestServer(t)
	id := uploadSample(t, ts)

	resp, err := http.Get(ts.URL + "/index?stream=true&boundary=counter&input=" + id)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type %q", ct)
	}
	var lines []map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, obj)
	}
	if len(lines) != 15 {
		t.Fatalf("got %d lines, want 14 records and a summary", len(lines))
	}
	first := lines[0]
	if first["type"] != "record" || first["id"] != "0xA0" || first["offset"] != float64(0) {
		t.Fatalf("unexpected first record: %v", first)
	}
	if _, ok := first["ensemble"]; ok {
		t.Fatalf("string record should carry no ensemble: %v", first)
	}
	last := lines[len(lines)-1]
	if last["type"] != "summary" || last["boundary"] != "counter" {
		t.Fatalf("unexpected summary line: %v", last)
	}
}

func TestHandleDecode(t *testing.T) {
	ts, runLog := newTestServer(t)
	id := uploadSample(t, ts)

	body := strings.NewReader(`{"inputs":["` + id + `"],"pdf":true}`)
	resp, err := http.Post(ts.URL+"/decode", "application/json", body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("decode status %d: %s", resp.StatusCode, msg)
	}
	var out struct {
		Results []decodeResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("got %d results", len(out.Results))
	}
	res := out.Results[0]
	if res.Error != "" {
		t.Fatalf("decode error: %s", res.Error)
	}
	if res.Report.Ensembles != 8 || !res.Report.Reduced || len(res.Report.Sha256) != 64 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}
	if len(res.Artifacts) != 2 {
		t.Fatalf("got %d artifacts, want json and pdf", len(res.Artifacts))
	}

	dl, err := http.Get(ts.URL + "/artifacts/" + res.Artifacts[1].ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	pdf, _ := io.ReadAll(dl.Body)
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("artifact is not a PDF")
	}
	if dl.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("content type %q", dl.Header.Get("Content-Type"))
	}

	entries, err := common.ReadRunLog(runLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if len(entries) != 1 || entries[0].Ensembles != 8 {
		t.Fatalf("unexpected run log: %+v", entries)
	}
}

func TestHandleDecodeReportsPerInputErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	id := uploadSample(t, ts)

	body := strings.NewReader(`{"inputs":["` + id + `"],"start":5,"stop":2}`)
	resp, err := http.Post(ts.URL+"/decode", "application/json", body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Results []decodeResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Error == "" {
		t.Fatalf("expected a per-input error: %+v", out.Results)
	}
}

func TestRejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := upload(t, ts, "notes.txt", []byte("hello, this is not a profiler capture"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload of text: status %d", resp.StatusCode)
	}

	resp, err := http.Post(ts.URL+"/decode", "application/json", strings.NewReader(`{"inputs":["/no/such/file.ad2cp"]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing input: status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/index?input=s3://bucket/key")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("remote input without store: status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/artifacts/unknown")
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown artifact: status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
}
