// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package network downloads build artifacts over HTTP.
package network

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/retry"
	"github.com/schollz/progressbar/v3"
)

const (
	downloadRetryAttempts = 3
	downloadRetryDuration = 2 * time.Second
)

// DownloadFile fetches the given URL into destPath, retrying transient
// failures. When showProgress is set, a byte-count progress bar is rendered
// on stderr.
func DownloadFile(url string, destPath string, showProgress bool) error {
	logger.Log.Debugf("Downloading (%s) -> (%s)", url, destPath)

	err := retry.Run(func() error {
		return downloadFileOnce(url, destPath, showProgress)
	}, downloadRetryAttempts, downloadRetryDuration)
	if err != nil {
		return fmt.Errorf("failed to download (%s) after %d attempts:\n%w", url, downloadRetryAttempts, err)
	}

	return nil
}

func downloadFileOnce(url string, destPath string, showProgress bool) error {
	response, err := http.Get(url)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status (%s) for (%s)", response.Status, url)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create download destination (%s):\n%w", destPath, err)
	}
	defer destFile.Close()

	var writer io.Writer = destFile
	if showProgress {
		bar := progressbar.NewOptions64(response.ContentLength,
			progressbar.OptionSetDescription("Downloading"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionClearOnFinish(),
		)
		writer = io.MultiWriter(destFile, bar)
	}

	_, err = io.Copy(writer, response.Body)
	if err != nil {
		return fmt.Errorf("failed to write download (%s):\n%w", destPath, err)
	}

	return nil
}
