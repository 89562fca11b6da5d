// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package sliceutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsValue(t *testing.T) {
	assert.True(t, ContainsValue([]string{"a", "b"}, "b"))
	assert.False(t, ContainsValue([]string{"a", "b"}, "c"))
	assert.False(t, ContainsValue(nil, "a"))
}

func TestFindValueFunc(t *testing.T) {
	value, found := FindValueFunc([]string{"loop0", "loop1p1"}, func(s string) bool {
		return strings.HasSuffix(s, "p1")
	})
	assert.True(t, found)
	assert.Equal(t, "loop1p1", value)

	_, found = FindValueFunc([]string{"loop0"}, func(s string) bool { return false })
	assert.False(t, found)
}
