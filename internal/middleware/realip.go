package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// NewRealIPMiddleware はクライアントIPを解決してRemoteAddrに設定するミドルウェアを返す。
//
// X-Forwarded-For / X-Real-IP は直前の接続元がtrustedに含まれる場合のみ参照する。
// X-Forwarded-Forは右から辿り、信頼済みプロキシでない最初のアドレスをクライアントとみなす。
// trustedが空の場合は転送ヘッダーを一切参照しない。
func NewRealIPMiddleware(trusted []netip.Prefix) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedClientIP(r, trusted); ok {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClientIP(r *http.Request, trusted []netip.Prefix) (string, bool) {
	if len(trusted) == 0 {
		return "", false
	}
	peer, ok := parseAddr(ClientIP(r))
	if !ok || !isTrusted(peer, trusted) {
		return "", false
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(strings.TrimSpace(hops[i]))
			if !ok {
				// 解釈できないホップより先は信用できない
				break
			}
			leftmost = addr
			if !isTrusted(addr, trusted) {
				return addr.String(), true
			}
		}
		if leftmost.IsValid() {
			return leftmost.String(), true
		}
	}

	if addr, ok := parseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ok {
		return addr.String(), true
	}
	return "", false
}

func parseAddr(s string) (netip.Addr, bool) {
	if s == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
