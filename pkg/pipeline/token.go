package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// DefaultTokenTTL は継続トークンの有効期間です。
const DefaultTokenTTL = 10 * time.Minute

// StepClaims は継続トークンに署名付きで埋め込む状態です。
// トークンだけでステップ順序・所有者・対象画像の3点を検証できます。
type StepClaims struct {
	UserID        string `json:"uid"`
	Step          int    `json:"step"`
	TransactionID string `json:"txn"`
	ImageHash     string `json:"img"`
	jwt.RegisteredClaims
}

// TokenService は HS256 署名の継続トークンを発行・検証します。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService は署名鍵を注入して TokenService を初期化します。
func NewTokenService(secret []byte) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}
	return &TokenService{secret: secret, ttl: DefaultTokenTTL, now: time.Now}, nil
}

// Issue は指定ステップ完了を証明するトークンを発行します。
func (s *TokenService) Issue(userID string, step int, txID uuid.UUID, imageHash string) (string, error) {
	issuedAt := s.now()
	claims := &StepClaims{
		UserID:        userID,
		Step:          step,
		TransactionID: txID.String(),
		ImageHash:     imageHash,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名・期限・所有者・ステップ・画像ハッシュを検証します。
// いずれかが合わない場合は ErrToken を返し、理由の詳細は呼び出し側へ漏らしません。
func (s *TokenService) Verify(token, userID string, step int, imageHash string) (*StepClaims, error) {
	claims := &StepClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: 署名または期限が不正です", domain.ErrToken)
	}

	if claims.UserID != userID {
		return nil, fmt.Errorf("%w: 所有者が一致しません", domain.ErrToken)
	}
	if claims.Step != step {
		return nil, fmt.Errorf("%w: ステップ順序が一致しません", domain.ErrToken)
	}
	if imageHash != "" && claims.ImageHash != imageHash {
		return nil, fmt.Errorf("%w: 画像が改変されています", domain.ErrToken)
	}
	return claims, nil
}

// ImageHash は画像バイト列の SHA-256 ハッシュを16進文字列で返します。
func ImageHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
