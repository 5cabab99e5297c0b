package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger.
//
// Level methods receive the message and the key-value slice as two
// arguments, so tests usually match the pairs with mock.Anything:
//
//	l.On("Error", "burst: 1541 not supported", mock.Anything).Once()
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger creates a mock without expectations.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowLevel accepts any number of messages at the named level method
// ("Debug", "Info", "Warn" or "Error") without asserting on them.
func (m *MockLogger) AllowLevel(levels ...string) *MockLogger {
	for _, lv := range levels {
		m.On(lv, mock.Anything, mock.Anything).Maybe()
	}

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

// With returns the configured child, or the mock itself without an
// expectation for With.
func (m *MockLogger) With(keyValues ...any) Logger {
	if !m.expects("With") {
		return m
	}
	args := m.Called(keyValues...)

	return args.Get(0).(Logger)
}

// Level returns DebugLevel without an expectation for Level.
func (m *MockLogger) Level() Level {
	if !m.expects("Level") {
		return DebugLevel
	}

	return m.Called().Get(0).(Level)
}

func (m *MockLogger) SetLevel(level Level) {
	if m.expects("SetLevel") {
		m.Called(level)
	}
}

func (m *MockLogger) expects(method string) bool {
	for _, c := range m.ExpectedCalls {
		if c.Method == method {
			return true
		}
	}

	return false
}
