// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру файла свойств application.yml.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Directories - настройки директорий.
	Directories *DirectoriesConfig `yaml:"directories,omitempty"`

	// Database - настройки базы данных леджера.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Conversion - настройки конвертации.
	Conversion *ConversionConfig `yaml:"conversion,omitempty"`

	// Archive - настройки распаковки архивов.
	Archive *ArchiveConfig `yaml:"archive,omitempty"`
}

// DirectoriesConfig содержит настройки директорий.
type DirectoriesConfig struct {
	// Source - исходная директория.
	Source string `yaml:"source,omitempty"`

	// Target - целевая директория.
	Target string `yaml:"target,omitempty"`
}

// DatabaseConfig содержит настройки базы данных.
type DatabaseConfig struct {
	// Path - директория с файлом базы данных.
	Path string `yaml:"path,omitempty"`

	// Name - имя файла базы данных.
	Name string `yaml:"name,omitempty"`

	// ContinueConversion - возобновлять прерванную конвертацию.
	ContinueConversion *bool `yaml:"continue-conversion,omitempty"`
}

// ConversionConfig содержит настройки конвертации.
// Скалярные поля объявлены указателями: иначе локальный файл не смог бы
// перекрыть значение в сторону false/нуля.
type ConversionConfig struct {
	// TimeoutSec - таймаут на одну команду конвертации в секундах.
	TimeoutSec *int `yaml:"timeout,omitempty"`

	// Converters - путь к файлу converters.yml.
	Converters string `yaml:"converters,omitempty"`

	// SfPath - путь к бинарнику siegfried.
	SfPath string `yaml:"sf_path,omitempty"`

	// Verbose - подробный вывод.
	Verbose *bool `yaml:"verbose,omitempty"`

	// NoProgress - отключить прогресс-бар.
	NoProgress *bool `yaml:"no_progress,omitempty"`
}

// ArchiveConfig содержит настройки распаковки архивов.
type ArchiveConfig struct {
	// MaxDepth - максимальная глубина вложенности архивов.
	MaxDepth int `yaml:"max_depth,omitempty"`
}

// LoadFromFile загружает файл свойств из указанного пути.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// LoadProperties загружает application.yml и накладывает на него
// application.local.yml из той же директории. Значения из локального
// файла имеют приоритет.
// Возвращает nil, nil если основной файл не существует.
func LoadProperties(path string) (*FileConfig, error) {
	fc, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return nil, nil
	}

	localPath := localPropertiesPath(path)
	local, err := LoadFromFile(localPath)
	if err != nil {
		return nil, err
	}
	fc.Merge(local)

	return fc, nil
}

// localPropertiesPath строит путь к локальному файлу свойств:
// application.yml -> application.local.yml.
func localPropertiesPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// Merge накладывает значения из other поверх fc.
// Заданные в other поля перезаписывают значения fc.
func (fc *FileConfig) Merge(other *FileConfig) {
	if other == nil {
		return
	}

	if other.Directories != nil {
		if fc.Directories == nil {
			fc.Directories = &DirectoriesConfig{}
		}
		if other.Directories.Source != "" {
			fc.Directories.Source = other.Directories.Source
		}
		if other.Directories.Target != "" {
			fc.Directories.Target = other.Directories.Target
		}
	}

	if other.Database != nil {
		if fc.Database == nil {
			fc.Database = &DatabaseConfig{}
		}
		if other.Database.Path != "" {
			fc.Database.Path = other.Database.Path
		}
		if other.Database.Name != "" {
			fc.Database.Name = other.Database.Name
		}
		if other.Database.ContinueConversion != nil {
			fc.Database.ContinueConversion = other.Database.ContinueConversion
		}
	}

	if other.Conversion != nil {
		if fc.Conversion == nil {
			fc.Conversion = &ConversionConfig{}
		}
		if other.Conversion.TimeoutSec != nil {
			fc.Conversion.TimeoutSec = other.Conversion.TimeoutSec
		}
		if other.Conversion.Converters != "" {
			fc.Conversion.Converters = other.Conversion.Converters
		}
		if other.Conversion.SfPath != "" {
			fc.Conversion.SfPath = other.Conversion.SfPath
		}
		if other.Conversion.Verbose != nil {
			fc.Conversion.Verbose = other.Conversion.Verbose
		}
		if other.Conversion.NoProgress != nil {
			fc.Conversion.NoProgress = other.Conversion.NoProgress
		}
	}

	if other.Archive != nil {
		if fc.Archive == nil {
			fc.Archive = &ArchiveConfig{}
		}
		if other.Archive.MaxDepth > 0 {
			fc.Archive.MaxDepth = other.Archive.MaxDepth
		}
	}
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// CLI флаги имеют приоритет над файлом свойств, поэтому эта функция
// должна вызываться до применения флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) {
	if fc == nil {
		return
	}

	if fc.Directories != nil {
		if fc.Directories.Source != "" {
			cfg.SourceDir = fc.Directories.Source
		}
		if fc.Directories.Target != "" {
			cfg.TargetDir = fc.Directories.Target
		}
	}

	if fc.Database != nil {
		if fc.Database.Path != "" {
			cfg.DBPath = fc.Database.Path
		}
		if fc.Database.Name != "" {
			cfg.DBName = fc.Database.Name
		}
		if fc.Database.ContinueConversion != nil {
			cfg.Resume = *fc.Database.ContinueConversion
		}
	}

	if fc.Conversion != nil {
		if fc.Conversion.TimeoutSec != nil {
			cfg.TimeoutSec = *fc.Conversion.TimeoutSec
		}
		if fc.Conversion.Converters != "" {
			cfg.ConvertersPath = fc.Conversion.Converters
		}
		if fc.Conversion.SfPath != "" {
			cfg.SfPath = fc.Conversion.SfPath
		}
		if fc.Conversion.Verbose != nil {
			cfg.Verbose = *fc.Conversion.Verbose
		}
		if fc.Conversion.NoProgress != nil {
			cfg.NoProgress = *fc.Conversion.NoProgress
		}
	}

	if fc.Archive != nil && fc.Archive.MaxDepth > 0 {
		cfg.MaxDepth = fc.Archive.MaxDepth
	}
}

// GenerateExampleConfig генерирует пример файла свойств.
func GenerateExampleConfig() string {
	return `# DocNormalizer Configuration File
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# Значения из application.local.yml перекрывают этот файл,
# CLI флаги имеют приоритет над обоими.

directories:
  # Исходная директория с файлами для конвертации
  source: "/data/source"
  # Целевая директория для конвертированных файлов
  target: "/data/target"

database:
  # Директория с файлом базы данных леджера
  # (по умолчанию <target>/.docnormalizer)
  path: ""
  # Имя файла базы данных
  name: "conversions.db"
  # Возобновлять прерванную конвертацию
  continue-conversion: true

conversion:
  # Таймаут на одну команду конвертации в секундах
  timeout: 300
  # Путь к файлу converters.yml (пусто = встроенная таблица)
  converters: ""
  # Путь к бинарнику siegfried (пусто = автопоиск)
  sf_path: ""
  # Подробный вывод
  verbose: false
  # Отключить прогресс-бар
  no_progress: false

archive:
  # Максимальная глубина вложенности архивов
  max_depth: 10
`
}

/*
Возможные расширения:
- Добавить поиск application.yml в стандартных путях (~/.config)
- Добавить поддержку переменных окружения в конфиге
*/
