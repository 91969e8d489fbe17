package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	nhttp "github.com/chaos-io/bgremove/util/http"
)

const (
	RemoteBackend = "rembg"
	removePath    = "/api/remove"
)

// RemoteRemBG 调用 rembg HTTP 服务抠图
//
//	curl -X POST "$BASE_URL/api/remove?model=u2net" -F "file=@my_image.png" -o out.png
type RemoteRemBG struct {
	baseURL    string
	model      string
	healthPath string
	timeout    time.Duration
	cli        nhttp.IClient
}

type Option func(*RemoteRemBG)

func WithModel(model string) Option {
	return func(b *RemoteRemBG) { b.model = model }
}

func WithTimeout(timeout time.Duration) Option {
	return func(b *RemoteRemBG) { b.timeout = timeout }
}

func WithHealthPath(path string) Option {
	return func(b *RemoteRemBG) { b.healthPath = path }
}

func WithClient(cli nhttp.IClient) Option {
	return func(b *RemoteRemBG) { b.cli = cli }
}

func NewRemoteRemBG(baseURL string, opts ...Option) *RemoteRemBG {
	b := &RemoteRemBG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: "/",
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cli == nil {
		b.cli = nhttp.NewHTTPClientWithTimeout(b.timeout)
	}
	return b
}

func (b *RemoteRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var query map[string]string
	if b.model != "" {
		query = map[string]string{"model": b.model}
	}

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + removePath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Query:      query,
		Body:       body,
		Response:   &data,
		Timeout:    b.timeout,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	slog.Debug("get the response", "bytes", len(data), "model", b.model)

	out, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Bounds().Size() != img.Bounds().Size() {
		return nil, fmt.Errorf("size mismatch: sent %v, got %v", img.Bounds().Size(), out.Bounds().Size())
	}
	return out, nil
}

func (b *RemoteRemBG) Ping(ctx context.Context) error {
	return b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + b.healthPath,
		Method:     http.MethodGet,
		Timeout:    5 * time.Second,
	})
}
