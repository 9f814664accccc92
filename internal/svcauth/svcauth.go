// Package svcauth 为服务间调用提供可验证的身份凭证。
// 凭证发放本身不在系统范围内，这里只实现最小的签发、附加与校验：
// 未配置密钥时整体关闭，公开接口的契约不受影响。
package svcauth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	xerrors "AgentPay/internal/errors"
	"AgentPay/pkg/logger"
)

const defaultTTL = 5 * time.Minute

// Config 描述服务身份凭证的签发参数。
type Config struct {
	// Secret 为空时禁用服务间认证。
	Secret  string
	Issuer  string
	Service string
	TTL     time.Duration
}

// Signer 签发并校验 HS256 服务身份令牌。
type Signer struct {
	secret  []byte
	issuer  string
	service string
	ttl     time.Duration
}

// New 构造 Signer。Secret 为空时返回 nil，表示认证关闭。
func New(cfg Config) *Signer {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Signer{
		secret:  []byte(secret),
		issuer:  cfg.Issuer,
		service: cfg.Service,
		ttl:     ttl,
	}
}

// Token 签发一个短时效的服务身份令牌。
func (s *Signer) Token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.service,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInitializationFailure, err, "签发服务凭证失败")
	}
	return signed, nil
}

// Credential 返回出站请求的凭证附加钩子。Signer 为 nil 时返回 nil。
func (s *Signer) Credential() func(*http.Request) {
	if s == nil {
		return nil
	}
	return func(req *http.Request) {
		token, err := s.Token()
		if err != nil {
			logger.L().Error("附加服务凭证失败", "error", err)
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Verify 校验令牌签名与时效，返回签发主体。
func (s *Signer) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "服务凭证无效")
	}
	return claims.Subject, nil
}

// Middleware 返回校验入站服务凭证的 HTTP 中间件。
// Signer 为 nil 时中间件为空操作，端点保持开放。
func (s *Signer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			caller, err := s.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.Audit().Warn("服务凭证校验失败",
					"path", r.URL.Path,
					"error", err.Error(),
				)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			logger.L().Debug("服务调用已认证", "caller", caller, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
