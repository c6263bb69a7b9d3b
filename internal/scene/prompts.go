package scene

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Ключи шаблонов промптов.
const (
	PromptEnhance  = "enhance"
	PromptPlan     = "plan"
	PromptWorld    = "world"
	PromptThoughts = "thoughts"
	PromptSpeech   = "speech"
	PromptFriend   = "friend"
)

var promptKeys = []string{PromptEnhance, PromptPlan, PromptWorld, PromptThoughts, PromptSpeech, PromptFriend}

//go:embed prompts/*.md
var defaultPrompts embed.FS

// PromptProvider хранит шаблоны промптов: встроенные по умолчанию
// и переопределённые файлами <dir>/<key>.md.
type PromptProvider struct {
	mu      sync.RWMutex
	prompts map[string]string
	logger  *zap.Logger
}

// NewPromptProvider загружает встроенные шаблоны и применяет переопределения из dir (если не пусто).
func NewPromptProvider(dir string, logger *zap.Logger) (*PromptProvider, error) {
	p := &PromptProvider{
		prompts: make(map[string]string, len(promptKeys)),
		logger:  logger.Named("PromptProvider"),
	}
	for _, key := range promptKeys {
		b, err := defaultPrompts.ReadFile("prompts/" + key + ".md")
		if err != nil {
			return nil, fmt.Errorf("встроенный промпт %s не найден: %w", key, err)
		}
		p.prompts[key] = strings.TrimSpace(string(b))
	}
	if dir != "" {
		if err := p.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadDir перечитывает переопределения из каталога. Отсутствующие файлы не ошибка.
func (p *PromptProvider) LoadDir(dir string) error {
	overridden := 0
	for _, key := range promptKeys {
		b, err := os.ReadFile(filepath.Join(dir, key+".md"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("ошибка чтения промпта %s: %w", key, err)
		}
		content := strings.TrimSpace(string(b))
		if content == "" {
			p.logger.Warn("Empty prompt override ignored", zap.String("key", key))
			continue
		}
		p.mu.Lock()
		p.prompts[key] = content
		p.mu.Unlock()
		overridden++
	}
	p.logger.Info("Prompt overrides loaded", zap.String("dir", dir), zap.Int("count", overridden))
	return nil
}

// Get возвращает шаблон с подставленными значениями {name} -> value.
func (p *PromptProvider) Get(key string, vars map[string]string) string {
	p.mu.RLock()
	tpl := p.prompts[key]
	p.mu.RUnlock()
	if tpl == "" {
		p.logger.Error("Unknown prompt key", zap.String("key", key))
		return ""
	}
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
