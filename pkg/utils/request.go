package utils

import (
	"net/http"
	"strings"
)

// AnonymousUser 未携带 X-User-ID 时使用的用户标识
const AnonymousUser = "anonymous"

// localIP 无法判断客户端地址时写入审计日志的默认值
const localIP = "127.0.0.1"

// UserID 从请求头读取用户标识
func UserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return AnonymousUser
}

// ClientIP 取 X-Forwarded-For 的第一跳，其次 X-Real-IP
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return localIP
}
