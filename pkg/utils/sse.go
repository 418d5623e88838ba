package utils

import (
	"net/http"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Flush 在底层 writer 支持时刷新缓冲
func Flush(w any) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
