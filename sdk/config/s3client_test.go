// SPDX-FileCopyrightText: © 2025 DAFNI - Science and Technology Facilities Council
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a path-style S3 endpoint. Listings are capped at two keys
// per page so continuation tokens are exercised.
type fakeStore struct {
	objects map[string]string
	lists   atomic.Int32
}

func (f *fakeStore) sortedKeys(prefix string) []string {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("list-type") == "2" {
		f.list(w, r)
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	content, ok := f.objects[parts[1]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	body := []byte(content)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Header.Get("Range") != "" {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
	}
	w.Write(body)
}

func (f *fakeStore) list(w http.ResponseWriter, r *http.Request) {
	f.lists.Add(1)
	prefix := r.URL.Query().Get("prefix")
	keys := f.sortedKeys(prefix)

	start := 0
	if tok := r.URL.Query().Get("continuation-token"); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := start + 2
	if end > len(keys) {
		end = len(keys)
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b,
			"<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-05-01T12:00:00Z</LastModified></Contents>",
			k, len(f.objects[k]))
	}
	fmt.Fprintf(&b, "<KeyCount>%d</KeyCount>", end-start)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	b.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	io.WriteString(w, b.String())
}

func testS3Client(t *testing.T, store *fakeStore) *S3Client {
	t.Helper()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	client, err := NewS3Client(context.Background(), S3Config{
		AccessKey:   "k",
		SecretKey:   "s",
		Region:      "us-east-1",
		EndpointURL: srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestListFilesAllPagesThroughResults(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"run-1/a.csv":        "alpha",
		"run-1/b.csv":        "beta",
		"run-1/logs/run.log": "started",
		"run-1/logs/":        "", // folder placeholder
		"run-2/other.csv":    "ignored, different prefix",
	}}
	client := testS3Client(t, store)

	files, err := client.ListFilesAll(context.Background(), "results", "run-1/")
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "a.csv", files[0].Name)
	assert.Equal(t, "run-1/a.csv", files[0].Path)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Equal(t, "logs/run.log", files[2].Name)
	assert.Equal(t, "2025-05-01T12:00:00Z", files[2].LastModified)

	// four matching keys at two per page means more than one request
	assert.GreaterOrEqual(t, store.lists.Load(), int32(2))
}

func TestListFilesPagedReturnsContinuationToken(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		"a": "1", "b": "2", "c": "3",
	}}
	client := testS3Client(t, store)

	max := int32(2)
	files, token, err := client.ListFilesPaged(context.Background(), "results", "", &max, nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	require.NotNil(t, token)

	files, token, err = client.ListFilesPaged(context.Background(), "results", "", &max, token)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Nil(t, token)
}

func TestDownloadFile(t *testing.T) {
	store := &fakeStore{objects: map[string]string{"run-1/a.csv": "alpha"}}
	client := testS3Client(t, store)

	target := filepath.Join(t.TempDir(), "a.csv")
	err := client.DownloadFile(context.Background(), "results", "run-1/a.csv", target)
	require.NoError(t, err)

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(b))
}

func TestDownloadFileWithProgressReportsBytes(t *testing.T) {
	store := &fakeStore{objects: map[string]string{"run-1/a.csv": "alpha"}}
	client := testS3Client(t, store)

	var startTotal, lastWritten, doneTotal int64
	hook := &ProgressHook{
		OnStart:    func(_ string, total int64) { startTotal = total },
		OnProgress: func(_ string, written, _ int64) { lastWritten = written },
		OnDone:     func(_ string, total int64, _ time.Duration) { doneTotal = total },
	}

	target := filepath.Join(t.TempDir(), "a.csv")
	err := client.DownloadFileWithProgress(context.Background(), "results", "run-1/a.csv", target, hook)
	require.NoError(t, err)

	assert.Equal(t, int64(5), startTotal)
	assert.Equal(t, int64(5), lastWritten)
	assert.Equal(t, int64(5), doneTotal)

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(b))
}
