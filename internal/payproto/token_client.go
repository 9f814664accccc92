package payproto

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	xerrors "AgentPay/internal/errors"
)

// TokenClient 封装对令牌服务的调用。
type TokenClient struct {
	caller *httpCaller
}

// NewTokenClient 构造令牌服务客户端。
func NewTokenClient(cfg ClientConfig) (*TokenClient, error) {
	caller, err := newHTTPCaller(cfg)
	if err != nil {
		return nil, err
	}
	return &TokenClient{caller: caller}, nil
}

// IssuedToken 表示一次令牌发放的结果。
type IssuedToken struct {
	TokenID  string `json:"token_id"`
	ExpireIn int64  `json:"expire_in"`
}

// Issue 申请发放一个余额等于 budget 的支付令牌。
func (c *TokenClient) Issue(ctx context.Context, budget int64, holder string) (*IssuedToken, error) {
	payload := map[string]any{"budget": budget, "holder": holder}
	resp, err := c.caller.do(ctx, http.MethodPost, "/token", nil, payload)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var issued IssuedToken
		if err := decodeJSON(resp, &issued); err != nil {
			return nil, err
		}
		return &issued, nil
	case http.StatusBadRequest:
		defer resp.Body.Close()
		return nil, xerrors.New(xerrors.CodeInvalidBudget, "令牌服务拒绝了发放预算")
	default:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("令牌服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// Balance 查询令牌剩余余额。未知令牌按 0 返回。
func (c *TokenClient) Balance(ctx context.Context, tokenID string) (int64, error) {
	path := "/balance/" + url.PathEscape(tokenID)
	resp, err := c.caller.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return 0, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("余额查询返回状态 %d", resp.StatusCode))
	}
	var decoded struct {
		Balance int64 `json:"balance"`
	}
	if err := decodeJSON(resp, &decoded); err != nil {
		return 0, err
	}
	return decoded.Balance, nil
}
