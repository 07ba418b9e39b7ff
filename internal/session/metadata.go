package session

import (
	"context"
	"time"

	"github.com/barkeep-app/barkeep/internal/token"
)

// RequestMetadata carries request attributes the audit trail records.
type RequestMetadata struct {
	IP        string
	UserAgent string
}

type metadataContextKey struct{}

// ContextWithRequestMetadata attaches request metadata for audit recording.
func ContextWithRequestMetadata(ctx context.Context, md RequestMetadata) context.Context {
	return context.WithValue(ctx, metadataContextKey{}, md)
}

// RequestMetadataFromContext extracts audit metadata, if present.
func RequestMetadataFromContext(ctx context.Context) (RequestMetadata, bool) {
	md, ok := ctx.Value(metadataContextKey{}).(RequestMetadata)
	return md, ok
}

func tokenExpiry(bearer string, now time.Time) time.Time {
	if exp, ok := token.Expiry(bearer); ok {
		return exp.UTC()
	}
	return now.UTC()
}
