package token

import (
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	xerrors "AgentPay/internal/errors"
)

// Handler 暴露令牌服务的 REST 接口。
type Handler struct {
	svc *Service
}

// NewHandler 构造 HTTP 处理器。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Router 构建路由。internalMW 仅挂载在服务间调用的扣款端点上。
func (h *Handler) Router(internalMW ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/token", h.handleIssue)
	r.Get("/balance/{token_id}", h.handleBalance)
	r.Group(func(internal chi.Router) {
		for _, mw := range internalMW {
			if mw != nil {
				internal.Use(mw)
			}
		}
		internal.Post("/token/{token_id}/debit", h.handleDebit)
	})
	return r
}

type issueRequest struct {
	Budget int64  `json:"budget"`
	Holder string `json:"holder"`
	// voice_id 是旧版调用方使用的字段，等价于 holder。
	VoiceID string `json:"voice_id"`
}

type issueResponse struct {
	TokenID  string `json:"token_id"`
	ExpireIn int64  `json:"expire_in"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	holder := strings.TrimSpace(req.Holder)
	if holder == "" {
		holder = strings.TrimSpace(req.VoiceID)
	}
	issued, err := h.svc.Issue(r.Context(), req.Budget, holder)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeInvalidBudget {
			writeError(w, http.StatusBadRequest, xerrors.CodeInvalidBudget, "预算不能为负数")
			return
		}
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{TokenID: issued.ID, ExpireIn: issued.ExpireIn})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "token_id")
	balance, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type debitRequest struct {
	Amount int64 `json:"amount"`
}

type debitResponse struct {
	Success bool  `json:"success"`
	Balance int64 `json:"balance"`
}

func (h *Handler) handleDebit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "token_id")
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	balance, err := h.svc.Debit(r.Context(), id, req.Amount)
	if err != nil {
		switch {
		case stdErrors.Is(err, ErrTokenNotFound),
			stdErrors.Is(err, ErrTokenExpired),
			stdErrors.Is(err, ErrInsufficientBalance):
			// 扣款被拒绝属于业务结果而非协议错误，状态保持 200。
			writeJSON(w, http.StatusOK, debitResponse{Success: false, Balance: balance})
		case xerrors.CodeOf(err) == xerrors.CodeInvalidArgument:
			writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, xerrors.CodeOf(err), err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, debitResponse{Success: true, Balance: balance})
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
