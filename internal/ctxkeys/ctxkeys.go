// Package ctxkeys 定义跨包使用的 context 键。
package ctxkeys

import "context"

// TraceIDKey 运行 ID，贯穿日志与数据库记录
type TraceIDKey struct{}

// WithTraceID 在 ctx 中附带运行 ID
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey{}, id)
}

// TraceID 取出运行 ID，没有时为空
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey{}).(string)
	return id
}
