// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sliceutils provides small generic slice helpers.
package sliceutils

// ContainsValue reports whether value is present in the slice.
func ContainsValue[T comparable](slice []T, value T) bool {
	for _, entry := range slice {
		if entry == value {
			return true
		}
	}
	return false
}

// FindValueFunc returns the first value in the slice matching the predicate.
func FindValueFunc[T any](slice []T, predicate func(T) bool) (value T, found bool) {
	for _, entry := range slice {
		if predicate(entry) {
			return entry, true
		}
	}
	return value, false
}
