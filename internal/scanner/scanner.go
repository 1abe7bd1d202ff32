// Package scanner отвечает за обход исходной директории.
package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/avkuznecov/docnormalizer/internal/config"
)

// Count возвращает количество обычных файлов в директории.
// Используется проверкой согласованности: количество файлов на диске
// должно совпадать с количеством идентифицированных строк.
// Скрытые директории и служебная директория состояния пропускаются.
func Count(dir string) (int, error) {
	var count int

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		count++
		return nil
	})

	return count, err
}

// Walk вызывает fn для каждого обычного файла директории с его
// относительным путём. Используется режимом слежения.
func Walk(dir string, fn func(relPath string, info os.FileInfo) error) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return fn(rel, info)
	})
}

// skipDir возвращает true для директорий, не участвующих в конвертации.
func skipDir(name string) bool {
	return name == config.StateDirName || strings.HasPrefix(name, ".")
}

/*
Возможные расширения:
- Добавить поддержку exclude-паттернов
- Добавить обработку symlinks
*/
