package logging

import "github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"

// NopLogger discards all log messages. It is the default when no
// logger option is provided, so call sites never need nil checks.
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a new no-op logger.
func NewNop() *NopLogger {
	return &NopLogger{}
}

// Debug discards the message.
func (n *NopLogger) Debug(_ string, _ ...any) {}

// Info discards the message.
func (n *NopLogger) Info(_ string, _ ...any) {}

// Warn discards the message.
func (n *NopLogger) Warn(_ string, _ ...any) {}

// Error discards the message.
func (n *NopLogger) Error(_ string, _ ...any) {}

// Fatal discards the message. Unlike real implementations it does
// not exit, keeping the nop logger safe for tests.
func (n *NopLogger) Fatal(_ string, _ ...any) {}
