package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore はローカルディレクトリに画像を保存するProofStore実装。
// 画像は/uploads/配下で静的配信される。
type LocalStore struct {
	root    string
	urlBase string
}

// NewLocalStore はLocalStoreを生成する。rootが存在しない場合は作成する。
func NewLocalStore(root, urlBase string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{root: root, urlBase: urlBase}, nil
}

// Root は保存先ディレクトリを返す。
func (s *LocalStore) Root() string {
	return s.root
}

// Save はキーに対応するファイルへ画像を書き込む。
func (s *LocalStore) Save(_ context.Context, key, _ string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create proof dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write proof: %w", err)
	}
	return nil
}

// URL は静的配信パスを返す。
func (s *LocalStore) URL(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return s.urlBase + "/" + key, nil
}

// Delete はファイルを削除する。
func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete proof: %w", err)
	}
	return nil
}

func (s *LocalStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

var _ ProofStore = (*LocalStore)(nil)
