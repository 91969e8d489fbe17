package session

import "context"

type requestIDKey struct{}

// WithRequestID 把请求 id 带进 context，日志里用来串联一次交互
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
