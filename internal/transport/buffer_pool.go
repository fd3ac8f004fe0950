package transport

import "sync"

// bufferPool reuses the persistent per-connection read buffer each
// transport holds for the lifetime of a Start/Stop cycle, so repeated
// client construction (typical in tests, and in any long-running process
// that restarts a resolver instance) does not accumulate garbage.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, maxUDPDatagram)
		return &buf
	},
}

// GetBuffer returns a pointer to a maxUDPDatagram-sized buffer from the pool.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer zeroes and returns buf to the pool. The caller must not use
// buf after calling PutBuffer.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(bufPtr)
}
