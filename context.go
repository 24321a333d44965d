package contestauth

import "context"

type requestInfoKey struct{}

// requestInfo is the caller metadata an HTTP layer can attach to a request
// context. It feeds throttling and audit events only.
type requestInfo struct {
	IP        string
	UserAgent string
}

// WithClientIP records the caller's address for per-IP throttling and audit.
func WithClientIP(ctx context.Context, ip string) context.Context {
	info := requestInfoFrom(ctx)
	info.IP = ip
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	info := requestInfoFrom(ctx)
	info.UserAgent = userAgent
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}
