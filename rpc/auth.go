package rpc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/observability"
)

const jwtLeeway = 2 * time.Minute

// principal is the authenticated identity of a request. Only the static
// operator token may act for any caller; JWTs are bound to their subject.
type principal struct {
	operator bool
	subject  string
}

func (s *Server) requireAuth(r *http.Request) (*principal, *RPCError) {
	p, rpcErr := s.authenticate(r)
	if rpcErr != nil {
		observability.ModuleMetrics().RecordThrottle(metricsModule, "unauthorized")
	}
	return p, rpcErr
}

func (s *Server) authenticate(r *http.Request) (*principal, *RPCError) {
	token := strings.TrimSpace(s.cfg.AuthToken)
	secret := strings.TrimSpace(s.cfg.JWTSecret)
	if token == "" && secret == "" {
		return nil, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if bearer == "" {
		return nil, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if token != "" && subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1 {
		return &principal{operator: true}, nil
	}
	if secret != "" {
		subject, err := parseJWT(bearer, []byte(secret), s.cfg.JWTIssuer)
		if err == nil {
			return &principal{subject: subject}, nil
		}
		return nil, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return nil, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}

func parseJWT(raw string, secret []byte, issuer string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(jwtLeeway),
	}
	if strings.TrimSpace(issuer) != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject required")
	}
	return subject, nil
}

// authorize rejects tokens issued to a different account than caller.
func (p *principal) authorize(caller [20]byte) *RPCError {
	if p == nil {
		return &RPCError{Code: codeNamesForbidden, Message: "forbidden"}
	}
	if p.operator {
		return nil
	}
	if p.subject != crypto.FormatAccount(caller) {
		return &RPCError{Code: codeNamesForbidden, Message: "forbidden", Data: "token subject does not match caller"}
	}
	return nil
}
