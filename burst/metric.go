package burst

import "sync/atomic"

// Metrics contains atomic counters of an Engine.
type Metrics struct {
	// UploadCount counts program uploads that were started.
	UploadCount atomic.Uint64
	// UploadErrCount counts failed uploads and rejected models.
	UploadErrCount atomic.Uint64
	// BytesRead counts bytes received in burst mode.
	BytesRead atomic.Uint64
	// BytesWritten counts bytes sent in burst mode.
	BytesWritten atomic.Uint64
}

func (m *Metrics) incUploadCount() {
	m.UploadCount.Add(1)
}

func (m *Metrics) incUploadErrCount() {
	m.UploadErrCount.Add(1)
}

func (m *Metrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n)) //nolint:gosec
}

func (m *Metrics) addBytesWritten(n int) {
	m.BytesWritten.Add(uint64(n)) //nolint:gosec
}
