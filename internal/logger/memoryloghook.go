// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package logger

// Stores log messages in memory so that tests can assert on them.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type MemoryLogHook struct {
	messagesLock sync.Mutex
	messages     []MemoryLogMessage
}

type MemoryLogMessage struct {
	Message string
	Level   logrus.Level
}

func NewMemoryLogHook() *MemoryLogHook {
	return &MemoryLogHook{}
}

func (h *MemoryLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *MemoryLogHook) Fire(entry *logrus.Entry) error {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()

	h.messages = append(h.messages, MemoryLogMessage{
		Message: entry.Message,
		Level:   entry.Level,
	})
	return nil
}

// ConsumeMessages returns all messages collected so far and resets the hook.
func (h *MemoryLogHook) ConsumeMessages() []MemoryLogMessage {
	h.messagesLock.Lock()
	defer h.messagesLock.Unlock()

	messages := h.messages
	h.messages = nil
	return messages
}
