// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"errors"
	"fmt"
)

// Global error types for categorization
var (
	ErrTypeResourceAcquisition = errors.New("resource-acquisition")
	ErrTypeExternalTool        = errors.New("external-tool")
	ErrTypeNetworkFetch        = errors.New("network-fetch")
	ErrTypePartialLink         = errors.New("partial-link")
)

// Static error messages as global variables
var (
	ErrToolMustRunAsRoot = errors.New("tool must be run as root (e.g. by using sudo)")
)

// BuildError attaches an error category to a pipeline failure.
type BuildError struct {
	Type    error
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s:\n%v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

func (e *BuildError) Is(target error) bool {
	return errors.Is(e.Type, target)
}

func NewBuildError(errorType error, message string) *BuildError {
	return &BuildError{
		Type:    errorType,
		Message: message,
	}
}

func NewBuildErrorWithCause(errorType error, message string, cause error) *BuildError {
	return &BuildError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}
