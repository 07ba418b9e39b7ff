package shared

import "context"

type browserContextKey struct{}

// ContextWithBrowser stores the browser session in context.
func ContextWithBrowser(ctx context.Context, br *Browser) context.Context {
	return context.WithValue(ctx, browserContextKey{}, br)
}

// BrowserFromContext extracts the browser session from context.
func BrowserFromContext(ctx context.Context) *Browser {
	br, _ := ctx.Value(browserContextKey{}).(*Browser)
	return br
}
