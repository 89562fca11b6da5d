// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package network

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	contents := []byte("statically linked busybox bits")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(contents)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "busybox")
	err := DownloadFile(server.URL, destPath, false /*showProgress*/)
	require.NoError(t, err)

	downloaded, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, contents, downloaded)
}

func TestDownloadFileRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "artifact")
	err := DownloadFile(server.URL, destPath, false /*showProgress*/)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadFileNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "artifact")
	err := DownloadFile(server.URL, destPath, false /*showProgress*/)
	assert.ErrorContains(t, err, "404")
}
