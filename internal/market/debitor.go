package market

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/token"
)

// LocalDebitor 在进程内直接调用令牌服务完成扣款，用于单机部署与测试。
type LocalDebitor struct {
	Tokens *token.Service
}

// Debit 实现 Debitor 接口。业务性拒绝返回 false 而非 error。
func (d *LocalDebitor) Debit(ctx context.Context, tokenID string, amount int64) (bool, error) {
	if d == nil || d.Tokens == nil {
		return false, xerrors.New(xerrors.CodeInitializationFailure, "令牌服务未配置")
	}
	_, err := d.Tokens.Debit(ctx, tokenID, amount)
	if err != nil {
		switch {
		case stdErrors.Is(err, token.ErrTokenNotFound),
			stdErrors.Is(err, token.ErrTokenExpired),
			stdErrors.Is(err, token.ErrInsufficientBalance):
			return false, nil
		}
		return false, err
	}
	return true, nil
}

const defaultDebitTimeout = 5 * time.Second

// RemoteDebitor 通过 HTTP 调用独立部署的令牌服务完成扣款。
type RemoteDebitor struct {
	baseURL    string
	httpClient *http.Client
	// credential 在每个出站请求上附加服务身份凭证，可为空。
	credential func(*http.Request)
}

// NewRemoteDebitor 构造指向令牌服务的扣款客户端。
func NewRemoteDebitor(baseURL string, timeout time.Duration, credential func(*http.Request)) (*RemoteDebitor, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "令牌服务地址不能为空")
	}
	if timeout <= 0 {
		timeout = defaultDebitTimeout
	}
	return &RemoteDebitor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		credential: credential,
	}, nil
}

// Debit 实现 Debitor 接口。
func (d *RemoteDebitor) Debit(ctx context.Context, tokenID string, amount int64) (bool, error) {
	payload, err := json.Marshal(map[string]int64{"amount": amount})
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码扣款请求失败")
	}
	endpoint := fmt.Sprintf("%s/token/%s/debit", d.baseURL, url.PathEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建扣款请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	if d.credential != nil {
		d.credential(req)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "请求令牌服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("令牌服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析扣款响应失败")
	}
	return decoded.Success, nil
}

var (
	_ Debitor = (*LocalDebitor)(nil)
	_ Debitor = (*RemoteDebitor)(nil)
)
