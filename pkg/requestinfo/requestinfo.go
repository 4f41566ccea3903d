package requestinfo

import "context"

type infoKey struct{}

// Info is the ambient request metadata recorded on audited writes.
type Info struct {
	IPAddress string
	UserAgent string
	SessionID string
	RequestID string
}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// FromContext returns the request metadata stored on ctx, if any.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}
