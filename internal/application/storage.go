package application

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxBaseNameLen は保存ファイル名のうち元ファイル名部分の上限。
const maxBaseNameLen = 100

// DiskStorage はアップロード書類をローカルディレクトリに保存する。
type DiskStorage struct {
	dir string
}

// NewDiskStorage はDiskStorageを生成する。ディレクトリが無ければ作成する。
func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStorage{dir: dir}, nil
}

// Dir は保存先ディレクトリを返す。
func (s *DiskStorage) Dir() string {
	return s.dir
}

// Save はrの内容を "<uuid>-<サニタイズ済みファイル名>" として保存し、保存名を返す。
func (s *DiskStorage) Save(filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + "-" + SanitizeFilename(filename)

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return name, nil
}

// Remove は保存済みファイルを削除する。存在しない場合はエラーにしない。
func (s *DiskStorage) Remove(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid stored name %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// SanitizeFilename はパス成分を取り除き、空白を _ に置き換え、英数字と . _ - 以外の文字を除去する。
// 空になった場合は "document" を返す。
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	base := filename[strings.LastIndex(filename, "/")+1:]

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxBaseNameLen {
		out = out[len(out)-maxBaseNameLen:]
	}
	if out == "" {
		return "document"
	}
	return out
}
