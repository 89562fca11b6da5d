// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package randomization generates unique names for per-invocation resources.
package randomization

import (
	"fmt"

	"github.com/google/uuid"
)

// UniqueDirName returns a directory name of the form "<prefix>-<uuid>" that
// will not collide with any prior invocation's directory.
func UniqueDirName(prefix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate random identifier:\n%w", err)
	}
	return fmt.Sprintf("%s-%s", prefix, id.String()), nil
}
