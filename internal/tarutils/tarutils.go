// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package tarutils

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
)

// ExpandTarGzArchive extracts a .tar.gz archive into outputDir.
func ExpandTarGzArchive(sourceArchivePath, outputDir string) error {
	logger.Log.Debugf("Expanding archive (%s) to (%s)", sourceArchivePath, outputDir)

	f, err := os.Open(sourceArchivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive (%s):\n%w", sourceArchivePath, err)
	}
	defer f.Close()

	gzr, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader for (%s):\n%w", sourceArchivePath, err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read header from archive:\n%w", err)
		}

		// Ensure the name is not a directory traversal element (e.g. '..')
		// or an absolute path. Normalize with filepath.Clean() before
		// checking.
		cleanName := filepath.Clean(header.Name)
		if strings.Contains(cleanName, "..") || filepath.IsAbs(cleanName) {
			return fmt.Errorf("unallowed file reference in archive. (%s) may reference a file outside the expansion root (%s)", header.Name, outputDir)
		}

		target := filepath.Join(outputDir, cleanName)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create folder (%s):\n%w", target, err)
			}
		case tar.TypeReg:
			if err := expandRegularFile(tr, target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink (%s):\n%w", target, err)
			}
		default:
			logger.Log.Debugf("Skipping unsupported archive entry (%s) of type (%v)", target, header.Typeflag)
		}
	}
	return nil
}

func expandRegularFile(tr *tar.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent folder for (%s):\n%w", target, err)
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create (%s):\n%w", target, err)
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, tr)
	if err != nil {
		return fmt.Errorf("failed to copy (%s) from archive:\n%w", target, err)
	}

	return nil
}
