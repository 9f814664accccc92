package payproto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	xerrors "AgentPay/internal/errors"
	"AgentPay/internal/market"
)

// MarketClient 封装对资源服务的调用。
type MarketClient struct {
	caller *httpCaller
}

// NewMarketClient 构造资源服务客户端。
func NewMarketClient(cfg ClientConfig) (*MarketClient, error) {
	caller, err := newHTTPCaller(cfg)
	if err != nil {
		return nil, err
	}
	return &MarketClient{caller: caller}, nil
}

// DetailResult 表示一次资源访问的结果：要么拿到资源，要么收到报价。
type DetailResult struct {
	Granted bool
	Price   int64
	Body    json.RawMessage
}

// FetchDetail 访问资源详情。tokenID 为空表示未认证探测。
func (c *MarketClient) FetchDetail(ctx context.Context, resourceID, tokenID string) (*DetailResult, error) {
	path := "/resource/detail?id=" + url.QueryEscape(resourceID)
	headers := map[string]string{market.PaymentTokenHeader: tokenID}
	resp, err := c.caller.do(ctx, http.MethodGet, path, headers, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "读取资源正文失败")
		}
		return &DetailResult{Granted: true, Body: body}, nil
	case http.StatusPaymentRequired:
		var quote struct {
			Price int64 `json:"price"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析报价失败")
		}
		return &DetailResult{Granted: false, Price: quote.Price}, nil
	case http.StatusNotFound:
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("资源 %s 不存在", resourceID))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("资源服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// Pay 提交支付结算。返回结算是否被接受。
func (c *MarketClient) Pay(ctx context.Context, tokenID string, amount int64, resourceID string) (bool, error) {
	payload := map[string]any{
		"tokenId":     tokenID,
		"amount":      amount,
		"resource_id": resourceID,
	}
	resp, err := c.caller.do(ctx, http.MethodPost, "/resource/pay", nil, payload)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("结算返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	var decoded struct {
		Success bool `json:"success"`
	}
	if err := decodeJSON(resp, &decoded); err != nil {
		return false, err
	}
	return decoded.Success, nil
}

// Search 调用免费搜索端点，把关键字映射为候选资源。
func (c *MarketClient) Search(ctx context.Context, keyword string) ([]market.Summary, error) {
	path := "/resource/basic?keyword=" + url.QueryEscape(keyword)
	resp, err := c.caller.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("搜索返回状态 %d", resp.StatusCode))
	}
	var decoded struct {
		Data []market.Summary `json:"data"`
	}
	if err := decodeJSON(resp, &decoded); err != nil {
		return nil, err
	}
	return decoded.Data, nil
}
