package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// 错误响应体只截取前面一段放进 error
const maxErrorBody = 512

type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient() IClient {
	return NewHTTPClientWithTimeout(defaultTimeout)
}

func NewHTTPClientWithTimeout(timeout time.Duration) IClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error {
	if requestParam == nil {
		return errors.New("request param is nil")
	}

	if requestParam.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestParam.Timeout)
		defer cancel()
	}

	body, err := requestBody(requestParam.Body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, requestParam.Method, requestParam.RequestURI, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range requestParam.Header {
		req.Header.Set(k, v)
	}
	if len(requestParam.Query) > 0 {
		q := req.URL.Query()
		for k, v := range requestParam.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request %s %s: %w", requestParam.Method, req.URL.Redacted(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var reader io.Reader = resp.Body
	if requestParam.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, requestParam.MaxBodyBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(data))
	}

	return decodeResponse(data, requestParam.Response)
}

func requestBody(body interface{}) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

func decodeResponse(data []byte, response interface{}) error {
	switch r := response.(type) {
	case nil:
		return nil
	case *[]byte:
		*r = data
		return nil
	default:
		if len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, r); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}
}
