package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"WaxAgentKit/pkg/logger"
)

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode   Mode
	tokens []tokenEntry
	audit  *slog.Logger
}

type tokenEntry struct {
	digest  []byte
	subject *Subject
}

// NewService 构造身份认证服务实例。令牌只以 SHA-256 摘要的形式保存在内存中。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeToken:
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}

	if len(cfg.Tokens) == 0 {
		return nil, errors.New("token mode requires at least one token")
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for i, token := range cfg.Tokens {
		digest, err := tokenDigest(token)
		if err != nil {
			return nil, fmt.Errorf("token %d (%s): %w", i, token.Name, err)
		}
		key := hex.EncodeToString(digest)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("token %d (%s) is configured twice", i, token.Name)
		}
		seen[key] = struct{}{}

		name := strings.TrimSpace(token.Name)
		if name == "" {
			name = fmt.Sprintf("token-%d", i+1)
		}
		subject := &Subject{
			Name:        name,
			Permissions: dedupeStrings(token.Permissions),
			Disabled:    token.Disabled,
		}
		svc.tokens = append(svc.tokens, tokenEntry{digest: digest, subject: subject})
	}
	return svc, nil
}

// HashToken 返回令牌的十六进制 SHA-256 摘要，可直接写入配置的 sha256 字段。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Enabled 表示是否需要携带令牌。
func (s *Service) Enabled() bool {
	return s.Mode() != ModeDisabled
}

// AuthenticateRequest 验证 Authorization 头并返回对应的主体。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, ErrMissingToken
	}

	sum := sha256.Sum256([]byte(token))
	var match *Subject
	for _, entry := range s.tokens {
		if subtle.ConstantTimeCompare(entry.digest, sum[:]) == 1 {
			match = entry.subject
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	if match.Disabled {
		return nil, ErrSubjectRevoked
	}
	return match.Clone(), nil
}

// Authorize 检查上下文中的主体是否具备权限。鉴权关闭时总是放行。
func (s *Service) Authorize(ctx context.Context, perms ...string) error {
	if !s.Enabled() {
		return nil
	}
	subject, ok := FromContext(ctx)
	if !ok {
		return ErrMissingToken
	}
	return subject.Authorize(perms...)
}

func tokenDigest(token Token) ([]byte, error) {
	if plain := strings.TrimSpace(token.Token); plain != "" {
		sum := sha256.Sum256([]byte(plain))
		return sum[:], nil
	}
	encoded := strings.ToLower(strings.TrimSpace(token.SHA256))
	if encoded == "" {
		return nil, errors.New("token or sha256 must be set")
	}
	digest, err := hex.DecodeString(encoded)
	if err != nil || len(digest) != sha256.Size {
		return nil, errors.New("sha256 must be a 64 character hex digest")
	}
	return digest, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
