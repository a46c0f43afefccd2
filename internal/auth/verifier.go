package auth

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soramiyu/picture-api/utils"
)

// Verifier 校验身份提供方签发的 Bearer 令牌
// 任何校验失败都降级为匿名：是否接受匿名由各端点自行决定。
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier 创建令牌校验器
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth token secret is required")
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

// ResolveCaller 从 Authorization 头解析请求方身份
func (v *Verifier) ResolveCaller(authorizationHeader string) Caller {
	if authorizationHeader == "" {
		return Anonymous()
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return Anonymous()
	}

	tokenString := strings.TrimSpace(authorizationHeader[len(prefix):])
	if tokenString == "" {
		return Anonymous()
	}

	subject, err := v.verify(tokenString)
	if err != nil {
		log.Printf("[auth] token verification failed, treating caller as anonymous: %s", utils.SanitizeLogMessage(err.Error()))
		return Anonymous()
	}

	return Authenticated(subject)
}

// verify 校验签名与声明并返回 subject
func (v *Verifier) verify(tokenString string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read subject claim: %w", err)
	}
	if subject == "" {
		return "", errors.New("token has no subject claim")
	}

	return subject, nil
}
