package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir - стандартный путь Docker Secrets.
const DefaultDir = "/run/secrets"

// Reader читает секреты из файлов каталога Dir.
type Reader struct {
	Dir string
}

// NewReader создает Reader. Пустой dir означает DefaultDir.
func NewReader(dir string) Reader {
	if dir == "" {
		dir = DefaultDir
	}
	return Reader{Dir: dir}
}

// Read читает обязательный секрет. Пустой файл считается ошибкой.
func (r Reader) Read(name string) (string, error) {
	filePath := filepath.Join(r.Dir, name)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadOptional читает секрет, возвращая пустую строку, если файла нет.
func (r Reader) ReadOptional(name string) (string, error) {
	secret, err := r.Read(name)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return secret, err
}
