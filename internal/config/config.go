// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"path/filepath"
)

// Config содержит все настройки запуска конвертации.
type Config struct {
	// SourceDir - абсолютный путь к исходной директории.
	SourceDir string

	// TargetDir - абсолютный путь к целевой директории.
	TargetDir string

	// DBPath - путь к директории с базой данных леджера.
	DBPath string

	// DBName - имя файла базы данных.
	DBName string

	// Resume - true, чтобы возобновить прерванную конвертацию;
	// false, чтобы начать заново (леджер очищается).
	Resume bool

	// TimeoutSec - таймаут на одну команду конвертации в секундах.
	TimeoutSec int

	// MaxDepth - максимальная глубина вложенности архивов при распаковке.
	MaxDepth int

	// SfPath - путь к бинарнику siegfried (опционально, по умолчанию автопоиск).
	SfPath string

	// ConvertersPath - путь к файлу converters.yml (опционально).
	ConvertersPath string

	// Watch - режим слежения за исходной директорией.
	Watch bool

	// Verbose - подробный вывод.
	Verbose bool

	// NoProgress - отключить прогресс-бар.
	NoProgress bool
}

// StateDirName - имя служебной директории внутри целевой директории.
// Файлы внутри неё не участвуют в конвертации.
const StateDirName = ".docnormalizer"

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		DBName:     "conversions.db",
		Resume:     true,
		TimeoutSec: 300,
		MaxDepth:   10,
	}
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("исходная директория не указана (--source)")
	}
	if c.TargetDir == "" {
		return fmt.Errorf("целевая директория не указана (--target)")
	}
	if c.TimeoutSec < 1 {
		return fmt.Errorf("таймаут должен быть >= 1 секунды, получено: %d", c.TimeoutSec)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("глубина вложенности архивов должна быть >= 1, получено: %d", c.MaxDepth)
	}

	// Устанавливаем путь к БД по умолчанию
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.TargetDir, StateDirName)
	}
	if c.DBName == "" {
		c.DBName = "conversions.db"
	}

	return nil
}

/*
Возможные расширения:
- Добавить список расширений, исключаемых из конвертации
- Добавить настройку количества потоков siegfried (-multi)
*/
