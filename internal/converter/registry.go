// Package converter содержит реестр конвертеров и запуск внешних команд конвертации.
package converter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManualCommand - специальное значение команды: файл копируется в целевую
// директорию без изменений, а оператор конвертирует его вручную.
const ManualCommand = "manual"

// Override задаёт замену команды и расширения для конкретного исходного
// расширения. Используется, когда один формат охватывает несколько исходных
// кодировок, требующих разных инструментов.
type Override struct {
	// Command - команда конвертации (пусто = команда по умолчанию).
	Command string `yaml:"command,omitempty"`

	// Extension - целевое расширение (пусто = расширение по умолчанию).
	Extension string `yaml:"extension,omitempty"`
}

// Spec описывает конвертер для одного идентификатора формата.
type Spec struct {
	// Command - шаблон команды конвертации (см. токены в command.go).
	Command string `yaml:"command"`

	// Extension - целевое расширение без точки.
	// Пусто = сохранить текущее расширение файла.
	Extension string `yaml:"extension,omitempty"`

	// SourceExt - замены по текущему расширению исходного файла.
	SourceExt map[string]Override `yaml:"source-ext,omitempty"`
}

// Resolved содержит результат разрешения конвертера для конкретного файла.
type Resolved struct {
	// Command - шаблон команды для выполнения.
	Command string

	// TargetExt - целевое расширение без точки.
	TargetExt string
}

// Registry - неизменяемое отображение идентификатора формата в конвертер.
// Загружается один раз при старте процесса и передаётся по ссылке.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry создаёт реестр из готовой таблицы (для тестов).
func NewRegistry(specs map[string]Spec) *Registry {
	return &Registry{specs: specs}
}

// LoadRegistry загружает реестр: встроенная таблица по умолчанию,
// поверх которой записи из converters.yml (если путь указан).
func LoadRegistry(path string) (*Registry, error) {
	specs := make(map[string]Spec, len(defaultConverters))
	for id, spec := range defaultConverters {
		specs[id] = spec
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", path, err)
		}

		var loaded map[string]Spec
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
		}

		// Записи из файла заменяют встроенные по ключу
		for id, spec := range loaded {
			specs[id] = spec
		}
	}

	return &Registry{specs: specs}, nil
}

// Len возвращает количество зарегистрированных конвертеров.
func (r *Registry) Len() int {
	return len(r.specs)
}

// FormatIDs возвращает все зарегистрированные идентификаторы форматов.
func (r *Registry) FormatIDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	return ids
}

// Get возвращает спецификацию конвертера для идентификатора формата.
func (r *Registry) Get(formatID string) (Spec, bool) {
	spec, ok := r.specs[formatID]
	return spec, ok
}

// Resolve разрешает конвертер для формата и текущего расширения файла.
// Замена по исходному расширению имеет приоритет над значениями по умолчанию.
// Возвращает false, если формат не поддерживается - файл должен быть
// скопирован без изменений и помечен как not_supported.
func (r *Registry) Resolve(formatID, currentExt string) (Resolved, bool) {
	spec, ok := r.specs[formatID]
	if !ok {
		return Resolved{}, false
	}

	currentExt = strings.ToLower(strings.TrimPrefix(currentExt, "."))

	resolved := Resolved{
		Command:   spec.Command,
		TargetExt: spec.Extension,
	}

	if override, ok := spec.SourceExt[currentExt]; ok {
		if override.Command != "" {
			resolved.Command = override.Command
		}
		if override.Extension != "" {
			resolved.TargetExt = override.Extension
		}
	}

	// Целевое расширение по умолчанию - текущее расширение файла
	if resolved.TargetExt == "" {
		resolved.TargetExt = currentExt
	}

	return resolved, true
}

/*
Возможные расширения:
- Добавить валидацию шаблонов команд при загрузке (неизвестные токены)
- Добавить разрешение по mime-типу как fallback при неизвестном PUID
*/
