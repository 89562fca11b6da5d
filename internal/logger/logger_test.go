// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevelsMatchLogrus(t *testing.T) {
	levels := Levels()
	assert.Len(t, levels, len(logrus.AllLevels))
	assert.Contains(t, levels, "info")
	assert.Contains(t, levels, "trace")
}

func TestInitRejectsBadLevel(t *testing.T) {
	badLevel := "loud"
	err := Init(&LogFlags{LogLevel: &badLevel})
	assert.Error(t, err)
}

func TestMemoryLogHookCollectsAndResets(t *testing.T) {
	hook := NewMemoryLogHook()
	Log.AddHook(hook)

	Log.Warnf("disk %s is on fire", "/dev/loop7")

	messages := hook.ConsumeMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "disk /dev/loop7 is on fire", messages[0].Message)
	assert.Equal(t, logrus.WarnLevel, messages[0].Level)

	assert.Empty(t, hook.ConsumeMessages())
}
