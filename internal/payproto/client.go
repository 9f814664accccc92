package payproto

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	xerrors "AgentPay/internal/errors"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultRetryAttempts = 2
	defaultRetryBackoff  = 200 * time.Millisecond
)

// CredentialHook 在每个出站请求上附加服务身份凭证。
type CredentialHook func(*http.Request)

// ClientConfig 描述下游服务客户端的通用参数。
type ClientConfig struct {
	BaseURL string
	// Timeout 是单次网络调用的超时时间，避免无限期阻塞。
	Timeout time.Duration
	// RetryAttempts 是传输层故障的额外重试次数。
	// 重试只发生在传输层，绝不重放整个握手。
	RetryAttempts int
	RetryBackoff  time.Duration
	Credential    CredentialHook
	// HTTPClient 可选，测试中用于注入 httptest 客户端。
	HTTPClient *http.Client
}

// httpCaller 封装带超时、重试与凭证附加的 HTTP 调用。
type httpCaller struct {
	baseURL    string
	httpClient *http.Client
	credential CredentialHook
	attempts   int
	backoff    time.Duration
}

func newHTTPCaller(cfg ClientConfig) (*httpCaller, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "服务地址不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	attempts := cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	} else if attempts == 0 {
		attempts = defaultRetryAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &httpCaller{
		baseURL:    baseURL,
		httpClient: client,
		credential: cfg.Credential,
		attempts:   attempts,
		backoff:    backoff,
	}, nil
}

// do 发送请求。传输层故障按固定退避做有限次重试；
// 任何 HTTP 响应（包括 402、404）都原样返回给上层判断。
func (c *httpCaller) do(ctx context.Context, method, path string, headers map[string]string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码请求体失败")
		}
		payload = encoded
	}

	var lastErr error
	for attempt := 0; attempt <= c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, ctx.Err(), "等待重试时调用被取消")
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		var reader *bytes.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建请求失败")
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range headers {
			if value != "" {
				req.Header.Set(key, value)
			}
		}
		if c.credential != nil {
			c.credential(req)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, lastErr, "请求下游服务失败")
}

// decodeJSON 读取并解析响应体。
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析响应失败")
	}
	return nil
}
