package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// DefaultUserHeader は HeaderAuthenticator の既定ヘッダー名です。
const DefaultUserHeader = "X-User-Id"

// HeaderAuthenticator は前段のプロキシ等が解決済みの利用者IDをヘッダーで受け取る
// Authenticator の実装です。セッションやトークンの検証は前段の責務とします。
type HeaderAuthenticator struct {
	header string
}

// NewHeaderAuthenticator はヘッダー名を指定して初期化します。空なら既定名を使います。
func NewHeaderAuthenticator(header string) *HeaderAuthenticator {
	if header == "" {
		header = DefaultUserHeader
	}
	return &HeaderAuthenticator{header: header}
}

// UserID はヘッダーから利用者IDを取り出します。
func (a *HeaderAuthenticator) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(a.header))
	if id == "" {
		return "", fmt.Errorf("%w: %s ヘッダーがありません", domain.ErrAuthentication, a.header)
	}
	return id, nil
}
