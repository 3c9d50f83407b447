package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/samples"
)

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://survey/2024/mooring-a.ad2cp")
	require.NoError(t, err)
	require.Equal(t, "survey", bucket)
	require.Equal(t, "2024/mooring-a.ad2cp", key)

	for _, bad := range []string{"https://survey/x", "s3://survey", "s3:///x"} {
		_, _, err := ParseURL(bad)
		require.Error(t, err, bad)
	}
	require.True(t, IsURL("s3://a/b"))
	require.False(t, IsURL("/data/a.ad2cp"))
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = withRetry(context.Background(), 2, func() error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

// fakeS3 serves objects by path with HEAD and ranged GET support.
func fakeS3(t *testing.T, objects map[string][]byte, gets *int32) *httptest.Server {
	t.Helper()
	modified := time.Date(2024, time.March, 2, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := objects[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		if r.Method == http.MethodGet {
			atomic.AddInt32(gets, 1)
		}
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, "", modified, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenDecodesRemoteObject(t *testing.T) {
	data, err := samples.DefaultSession().Build()
	require.NoError(t, err)
	var gets int32
	srv := fakeS3(t, map[string][]byte{"survey/cap.ad2cp": data}, &gets)

	store, err := New(Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "testsecret",
		Region:    "us-east-1",
		Retries:   1,
	})
	require.NoError(t, err)

	blob, fp, err := store.Open(context.Background(), "s3://survey/cap.ad2cp")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())
	require.Equal(t, "s3://survey/cap.ad2cp", fp.Path)
	require.Equal(t, int64(len(data)), fp.Size)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, data[:10], buf)

	tail := make([]byte, 16)
	n, err = blob.ReadAt(tail, int64(len(data)-4))
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 4, n)
	require.Equal(t, data[len(data)-4:], tail[:4])

	r, err := ad2cp.OpenBlob(blob, fp, ad2cp.Options{})
	require.NoError(t, err)
	defer r.Close()
	res, err := r.ReadFile(0, -1)
	require.NoError(t, err)
	require.Equal(t, 8, res.Ensembles)
	require.Positive(t, atomic.LoadInt32(&gets))
}

func TestOpenMissingObject(t *testing.T) {
	var gets int32
	srv := fakeS3(t, map[string][]byte{}, &gets)
	store, err := New(Options{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "testsecret",
		Region:    "us-east-1",
		Retries:   1,
	})
	require.NoError(t, err)
	_, _, err = store.Open(context.Background(), "s3://survey/none.ad2cp")
	require.ErrorIs(t, err, ErrNotFound)
}
