package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	nhttp "github.com/chaos-io/bgremove/util/http"
)

// IsURL 是否是 http(s) 地址
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// ReadFile 读取本地图片，最多读 limit+1 字节，调用方据此判断是否超限
func ReadFile(path string, limit int64) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return data, info.Size(), nil
}

// Download 下载图片，和 ReadFile 一样最多读 limit+1 字节
func Download(ctx context.Context, cli nhttp.IClient, url string, limit int64) ([]byte, error) {
	var data []byte
	err := cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI:   url,
		Method:       http.MethodGet,
		Response:     &data,
		MaxBodyBytes: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return data, nil
}

// Load 本地路径或 URL 都可以
func Load(ctx context.Context, cli nhttp.IClient, path string, limit int64) ([]byte, int64, error) {
	if IsURL(path) {
		data, err := Download(ctx, cli, path, limit)
		return data, int64(len(data)), err
	}
	return ReadFile(path, limit)
}
