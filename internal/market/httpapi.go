package market

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	xerrors "AgentPay/internal/errors"
)

// PaymentTokenHeader 是携带支付令牌的请求头。
const PaymentTokenHeader = "x-payment-token"

// Handler 暴露资源服务的 REST 接口。
type Handler struct {
	catalog Catalog
	gate    *Gate
}

// NewHandler 构造 HTTP 处理器。
func NewHandler(catalog Catalog, gate *Gate) *Handler {
	return &Handler{catalog: catalog, gate: gate}
}

// Router 构建路由。internalMW 仅挂载在服务间调用的结算端点上。
func (h *Handler) Router(internalMW ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/resource/basic", h.handleSearch)
	r.Get("/resource/detail", h.handleDetail)
	r.Group(func(internal chi.Router) {
		for _, mw := range internalMW {
			if mw != nil {
				internal.Use(mw)
			}
		}
		internal.Post("/resource/pay", h.handlePay)
	})
	return r
}

// handleSearch 是免费的摘要搜索端点，编排服务用它把主题映射为资源 ID。
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.catalog.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	if results == nil {
		results = []Summary{}
	}
	writeJSON(w, http.StatusOK, map[string][]Summary{"data": results})
}

// handleDetail 实现付费闸门：无有效支付时以 402 重申报价，
// 让调用方总能按当前价格重新取得令牌。
func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "缺少资源 id")
		return
	}
	resource, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			writeError(w, http.StatusNotFound, xerrors.CodeNotFound, "资源不存在")
			return
		}
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	if resource.Price <= 0 {
		writeJSON(w, http.StatusOK, resource)
		return
	}
	tokenID := strings.TrimSpace(r.Header.Get(PaymentTokenHeader))
	if tokenID == "" || !h.gate.Redeem(tokenID, resource.ID, resource.Price) {
		writeJSON(w, http.StatusPaymentRequired, map[string]int64{"price": resource.Price})
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

type payRequest struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
	// resource_id 可选；声明后结算金额必须与该资源报价一致。
	ResourceID string `json:"resource_id"`
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	accepted, err := h.gate.Settle(r.Context(), req.TokenID, req.Amount, req.ResourceID)
	if err != nil {
		writeError(w, http.StatusBadGateway, xerrors.CodeUpstreamUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": accepted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": message,
	})
}
