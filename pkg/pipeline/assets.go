package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/shouni/phone-mockup-kit/pkg/domain"
)

// AssetStore は完成画像の保存先を抽象化するインターフェースです。
type AssetStore interface {
	Save(ctx context.Context, userID, name string, data []byte) (string, error)
}

// DiskAssetStore はローカルディスクへ保存する AssetStore の実装です。
type DiskAssetStore struct {
	dir     string
	baseURL string
}

// NewDiskAssetStore は保存先ディレクトリと公開URLの前置パスを指定して初期化します。
func NewDiskAssetStore(dir, baseURL string) (*DiskAssetStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if baseURL == "" {
		baseURL = "/outputs"
	}
	return &DiskAssetStore{dir: dir, baseURL: baseURL}, nil
}

// Save はユーザーごとのサブディレクトリへ書き込み、公開URLを返します。
func (s *DiskAssetStore) Save(ctx context.Context, userID, name string, data []byte) (string, error) {
	userDir := filepath.Join(s.dir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.WriteFile(filepath.Join(userDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return path.Join(s.baseURL, userID, name), nil
}
