// Package identify отвечает за идентификацию форматов файлов внешним инструментом.
package identify

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// SfInfo содержит информацию о найденном siegfried.
type SfInfo struct {
	// Path - абсолютный путь к бинарнику sf.
	Path string

	// Version - версия siegfried (например, "1.11.0").
	Version string
}

// Finder ищет бинарник siegfried (sf).
type Finder struct {
	// CustomPath - пользовательский путь к sf (из флага --sf-path).
	CustomPath string

	// EnvVar - имя переменной окружения для пути к sf.
	EnvVar string
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     "DOCNORMALIZER_SF",
	}
}

// Find ищет sf в следующем порядке:
// 1. CustomPath (если задан)
// 2. Переменная окружения DOCNORMALIZER_SF
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/sf
// Если sf не найден, вызывающая сторона переходит на fallback через file(1).
func (f *Finder) Find() (*SfInfo, error) {
	var candidates []string

	// 1. Пользовательский путь
	if f.CustomPath != "" {
		candidates = append(candidates, f.CustomPath)
	}

	// 2. Переменная окружения
	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	// 3. PATH
	if pathSf, err := exec.LookPath("sf"); err == nil {
		candidates = append(candidates, pathSf)
	}

	// 4. Рядом с бинарником
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)

		localPaths := []string{
			filepath.Join(execDir, "bin", platformDir, sfBinaryName()),
			filepath.Join(execDir, "bin", sfBinaryName()),
			filepath.Join(execDir, sfBinaryName()),
		}
		candidates = append(candidates, localPaths...)
	}

	// Проверяем каждого кандидата
	for _, path := range candidates {
		if info, err := f.checkSf(path); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("siegfried (sf) не найден, используется fallback через file(1). Проверьте:\n"+
		"  1. Установлен ли siegfried (https://www.itforarchivists.com/siegfried)\n"+
		"  2. Установлена ли переменная окружения %s\n"+
		"  3. Указан ли путь через флаг --sf-path", f.EnvVar)
}

// checkSf проверяет, является ли путь рабочим siegfried.
func (f *Finder) checkSf(path string) (*SfInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	// Пробуем получить версию
	cmd := exec.Command(absPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить sf -version: %w", err)
	}

	return &SfInfo{
		Path:    absPath,
		Version: parseVersion(string(output)),
	}, nil
}

// parseVersion извлекает версию из вывода "sf -version".
// Пример вывода: "siegfried 1.11.0"
func parseVersion(output string) string {
	output = strings.TrimSpace(output)

	if line, _, found := strings.Cut(output, "\n"); found {
		output = strings.TrimSpace(line)
	}
	if rest, ok := strings.CutPrefix(output, "siegfried "); ok {
		return rest
	}

	// Возвращаем как есть
	return output
}

// sfBinaryName возвращает имя бинарника sf для текущей ОС.
func sfBinaryName() string {
	if runtime.GOOS == "windows" {
		return "sf.exe"
	}
	return "sf"
}

/*
Возможные расширения:
- Проверка минимальной версии siegfried
- Кэширование результата поиска
*/
