package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	// Проверяем значения по умолчанию
	if cfg.DBName != "conversions.db" {
		t.Errorf("DBName = %q, want %q", cfg.DBName, "conversions.db")
	}

	if !cfg.Resume {
		t.Error("Resume should be true by default")
	}

	if cfg.TimeoutSec != 300 {
		t.Errorf("TimeoutSec = %d, want 300", cfg.TimeoutSec)
	}

	if cfg.MaxDepth != 10 {
		t.Errorf("MaxDepth = %d, want 10", cfg.MaxDepth)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &Config{
				SourceDir:  "/source",
				TargetDir:  "/target",
				TimeoutSec: 300,
				MaxDepth:   10,
			},
			wantErr: false,
		},
		{
			name: "missing source dir",
			cfg: &Config{
				TargetDir:  "/target",
				TimeoutSec: 300,
				MaxDepth:   10,
			},
			wantErr: true,
		},
		{
			name: "missing target dir",
			cfg: &Config{
				SourceDir:  "/source",
				TimeoutSec: 300,
				MaxDepth:   10,
			},
			wantErr: true,
		},
		{
			name: "invalid timeout",
			cfg: &Config{
				SourceDir:  "/source",
				TargetDir:  "/target",
				TimeoutSec: 0,
				MaxDepth:   10,
			},
			wantErr: true,
		},
		{
			name: "invalid max depth",
			cfg: &Config{
				SourceDir:  "/source",
				TargetDir:  "/target",
				TimeoutSec: 300,
				MaxDepth:   0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateDefaultDBPath(t *testing.T) {
	cfg := &Config{
		SourceDir:  "/source",
		TargetDir:  "/target",
		TimeoutSec: 300,
		MaxDepth:   10,
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := filepath.Join("/target", StateDirName)
	if cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.DBName != "conversions.db" {
		t.Errorf("DBName = %q, want conversions.db", cfg.DBName)
	}
}

func TestLoadProperties_LocalOverride(t *testing.T) {
	dir := t.TempDir()

	mainPath := filepath.Join(dir, "application.yml")
	mainYAML := `
directories:
  source: "/data/source"
  target: "/data/target"
database:
  name: "conversions.db"
  continue-conversion: true
conversion:
  timeout: 300
`
	if err := os.WriteFile(mainPath, []byte(mainYAML), 0644); err != nil {
		t.Fatal(err)
	}

	// Локальный файл перекрывает target и timeout
	localYAML := `
directories:
  target: "/local/target"
conversion:
  timeout: 60
`
	if err := os.WriteFile(filepath.Join(dir, "application.local.yml"), []byte(localYAML), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadProperties(mainPath)
	if err != nil {
		t.Fatalf("LoadProperties() error = %v", err)
	}
	if fc == nil {
		t.Fatal("LoadProperties() returned nil")
	}

	if fc.Directories.Source != "/data/source" {
		t.Errorf("Source = %q, want /data/source", fc.Directories.Source)
	}
	if fc.Directories.Target != "/local/target" {
		t.Errorf("Target = %q, want /local/target (локальный файл)", fc.Directories.Target)
	}
	if fc.Conversion.TimeoutSec == nil || *fc.Conversion.TimeoutSec != 60 {
		t.Errorf("TimeoutSec = %v, want 60 (локальный файл)", fc.Conversion.TimeoutSec)
	}

	cfg := DefaultConfig()
	fc.ApplyToConfig(cfg)

	if cfg.SourceDir != "/data/source" {
		t.Errorf("cfg.SourceDir = %q, want /data/source", cfg.SourceDir)
	}
	if cfg.TargetDir != "/local/target" {
		t.Errorf("cfg.TargetDir = %q, want /local/target", cfg.TargetDir)
	}
	if cfg.TimeoutSec != 60 {
		t.Errorf("cfg.TimeoutSec = %d, want 60", cfg.TimeoutSec)
	}
	if !cfg.Resume {
		t.Error("cfg.Resume = false, want true (continue-conversion)")
	}
}

func TestLoadProperties_LocalOverridesToFalse(t *testing.T) {
	dir := t.TempDir()

	mainPath := filepath.Join(dir, "application.yml")
	mainYAML := `
conversion:
  timeout: 300
  verbose: true
  no_progress: true
`
	if err := os.WriteFile(mainPath, []byte(mainYAML), 0644); err != nil {
		t.Fatal(err)
	}

	// Локальный файл выключает verbose и no_progress и снижает таймаут
	localYAML := `
conversion:
  timeout: 30
  verbose: false
  no_progress: false
`
	if err := os.WriteFile(filepath.Join(dir, "application.local.yml"), []byte(localYAML), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadProperties(mainPath)
	if err != nil {
		t.Fatalf("LoadProperties() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.Verbose = true
	cfg.NoProgress = true
	fc.ApplyToConfig(cfg)

	if cfg.Verbose {
		t.Error("cfg.Verbose = true, локальный verbose: false должен перекрывать")
	}
	if cfg.NoProgress {
		t.Error("cfg.NoProgress = true, локальный no_progress: false должен перекрывать")
	}
	if cfg.TimeoutSec != 30 {
		t.Errorf("cfg.TimeoutSec = %d, want 30 (локальный файл)", cfg.TimeoutSec)
	}
}

func TestLoadProperties_MissingFile(t *testing.T) {
	fc, err := LoadProperties(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadProperties() error = %v", err)
	}
	if fc != nil {
		t.Error("LoadProperties() для отсутствующего файла должен вернуть nil")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("directories: [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("LoadFromFile() для некорректного YAML должен вернуть ошибку")
	}
}

func TestGenerateExampleConfig(t *testing.T) {
	example := GenerateExampleConfig()
	if example == "" {
		t.Fatal("GenerateExampleConfig() returned empty string")
	}

	// Пример должен быть валидным YAML и применяться к конфигурации
	path := filepath.Join(t.TempDir(), "application.yml")
	if err := os.WriteFile(path, []byte(example), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("пример конфигурации не парсится: %v", err)
	}

	cfg := DefaultConfig()
	fc.ApplyToConfig(cfg)
	if cfg.SourceDir == "" || cfg.TargetDir == "" {
		t.Error("пример конфигурации должен задавать директории")
	}
}
