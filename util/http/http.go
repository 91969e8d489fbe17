package http

import (
	"context"
	"time"
)

type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 一次请求的参数
//
//	Body: nil / io.Reader / []byte 原样发送，其它类型按 JSON 序列化
//	Response: nil 丢弃响应体，*[]byte 接收原始字节，其它类型按 JSON 反序列化
//	MaxBodyBytes: 大于 0 时响应体最多读 MaxBodyBytes+1 字节，调用方据此判断是否超限
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Query      map[string]string
	Body       interface{}
	Response   interface{}

	MaxBodyBytes int64
	Timeout      time.Duration
}
