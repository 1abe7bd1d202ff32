// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avkuznecov/docnormalizer/internal/config"
	"github.com/avkuznecov/docnormalizer/internal/converter"
	"github.com/avkuznecov/docnormalizer/internal/identify"
	"github.com/avkuznecov/docnormalizer/internal/ledger"
	"github.com/avkuznecov/docnormalizer/internal/pipeline"
	"github.com/avkuznecov/docnormalizer/internal/watcher"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// defaultPropertiesFile - файл свойств, подхватываемый без флага --config.
const defaultPropertiesFile = "application.yml"

// cfg содержит глобальную конфигурацию.
var cfg = config.DefaultConfig()

// configPath - путь к файлу свойств из флага --config.
var configPath string

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docnormalizer",
		Short: "Утилита для нормализации документов в архивные форматы",
		Long: `DocNormalizer - CLI утилита для пофайловой нормализации дерева документов.

Форматы определяются через siegfried (или file как запасной вариант),
конвертация выполняется внешними командами по таблице форматов,
результаты фиксируются в SQLite-леджере. Повторный запуск продолжает
с места остановки: уже конвертированные файлы не трогаются.

Примеры:
  # Нормализовать директорию
  docnormalizer --source ./docs --target ./normalized

  # Начать с чистого леджера
  docnormalizer --source ./docs --target ./normalized --resume=false

  # Следить за директорией и нормализовать новые файлы
  docnormalizer --source ./inbox --target ./normalized --watch`,
		SilenceUsage: true,
		RunE:         runNormalize,
	}

	// Флаги
	flags := rootCmd.Flags()

	// Директории
	flags.StringVarP(&cfg.SourceDir, "source", "s", "", "Директория с исходными документами (обязательно)")
	flags.StringVarP(&cfg.TargetDir, "target", "t", "", "Директория для нормализованных копий (обязательно)")

	// Леджер
	flags.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Директория SQLite-леджера (по умолчанию внутри целевой)")
	flags.StringVar(&cfg.DBName, "db-name", cfg.DBName, "Имя файла SQLite-леджера")
	flags.BoolVarP(&cfg.Resume, "resume", "r", cfg.Resume, "Продолжить прерванный запуск, не очищая леджер")

	// Конвертация
	flags.IntVar(&cfg.TimeoutSec, "timeout", cfg.TimeoutSec, "Таймаут одной команды конвертации, секунд")
	flags.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "Максимальная глубина вложенных zip-архивов")
	flags.StringVar(&cfg.ConvertersPath, "converters", cfg.ConvertersPath, "Путь к yaml-файлу с таблицей конвертеров")
	flags.StringVar(&cfg.SfPath, "sf-path", cfg.SfPath, "Путь к бинарнику siegfried")

	// Режим работы
	flags.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Следить за исходной директорией и обрабатывать новые файлы")

	// Вывод
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Подробный вывод")
	flags.BoolVar(&cfg.NoProgress, "no-progress", cfg.NoProgress, "Отключить прогресс-бар")

	// Файл свойств
	flags.StringVar(&configPath, "config", "", "Путь к файлу свойств (по умолчанию application.yml)")

	// Подкоманды
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConvertersCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// applyProperties накладывает файл свойств на конфигурацию.
// Приоритет: значения по умолчанию < файл свойств < явные флаги.
func applyProperties(cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		path = defaultPropertiesFile
	}

	fc, err := config.LoadProperties(path)
	if err != nil {
		return err
	}
	if fc == nil {
		if configPath != "" {
			return fmt.Errorf("файл свойств не найден: %s", configPath)
		}
		return nil
	}

	// Файл применяется к отдельной копии, чтобы явные флаги остались в силе
	fromFile := config.DefaultConfig()
	fc.ApplyToConfig(fromFile)

	flagFields := map[string]func(){
		"source":      func() { cfg.SourceDir = fromFile.SourceDir },
		"target":      func() { cfg.TargetDir = fromFile.TargetDir },
		"db-path":     func() { cfg.DBPath = fromFile.DBPath },
		"db-name":     func() { cfg.DBName = fromFile.DBName },
		"resume":      func() { cfg.Resume = fromFile.Resume },
		"timeout":     func() { cfg.TimeoutSec = fromFile.TimeoutSec },
		"max-depth":   func() { cfg.MaxDepth = fromFile.MaxDepth },
		"converters":  func() { cfg.ConvertersPath = fromFile.ConvertersPath },
		"sf-path":     func() { cfg.SfPath = fromFile.SfPath },
		"verbose":     func() { cfg.Verbose = fromFile.Verbose },
		"no-progress": func() { cfg.NoProgress = fromFile.NoProgress },
	}
	for name, apply := range flagFields {
		if !cmd.Flags().Changed(name) {
			apply()
		}
	}

	return nil
}

// runNormalize выполняет основную логику нормализации.
func runNormalize(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	if err := applyProperties(cmd); err != nil {
		return fmt.Errorf("ошибка файла свойств: %w", err)
	}

	// Валидация конфигурации
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	// Создаём контекст с обработкой сигналов
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n⚠️  Получен сигнал завершения, останавливаем...")
		cancel()
	}()

	// Ищем siegfried
	sfPath := ""
	finder := identify.NewFinder(cfg.SfPath)
	sfInfo, err := finder.Find()
	if err != nil {
		fmt.Printf("⚠️  siegfried не найден, используется запасной вариант file: %v\n", err)
	} else {
		sfPath = sfInfo.Path
		fmt.Printf("📦 Найден siegfried: %s (версия %s)\n", sfInfo.Path, sfInfo.Version)
	}

	// Загружаем таблицу конвертеров
	registry, err := converter.LoadRegistry(cfg.ConvertersPath)
	if err != nil {
		return fmt.Errorf("не удалось загрузить таблицу конвертеров: %w", err)
	}

	// Инициализируем леджер
	store, err := ledger.Open(cfg.DBPath, cfg.DBName, cfg.Resume)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать леджер: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Выводим параметры
	fmt.Printf("🚀 Запуск нормализации:\n")
	fmt.Printf("   Источник: %s\n", cfg.SourceDir)
	fmt.Printf("   Цель: %s\n", cfg.TargetDir)
	fmt.Printf("   Леджер: %s\n", store.Path())
	fmt.Printf("   Конвертеров: %d\n", registry.Len())
	if !cfg.Resume {
		fmt.Println("   ⚠️  Леджер очищен, запуск с нуля")
	}
	fmt.Println()

	p := pipeline.New(cfg, registry, store, identify.New(sfPath))

	result, err := p.Run(ctx, cfg.SourceDir, cfg.TargetDir, false)
	if err != nil {
		return err
	}

	if cfg.Watch {
		if err := watchLoop(ctx, p); err != nil {
			return err
		}
	}

	// Выводим результаты
	stats := p.GetStats()
	duration := time.Since(startTime)
	fmt.Println()
	fmt.Printf("📊 Результаты:\n")
	fmt.Printf("   Конвертировано: %d\n", stats.Converted)
	fmt.Printf("   Без конвертера: %d\n", stats.NotSupported)
	fmt.Printf("   Ошибок: %d\n", stats.Failed)
	fmt.Printf("   Время: %s\n", duration.Round(time.Millisecond))

	if result.Message == pipeline.MsgError {
		return fmt.Errorf("запуск прерван до конвертации")
	}
	if stats.Failed > 0 {
		return fmt.Errorf("завершено с %d ошибками", stats.Failed)
	}

	return nil
}

// watchLoop повторно запускает конвейер при появлении новых файлов.
func watchLoop(ctx context.Context, p *pipeline.Pipeline) error {
	w, err := watcher.New(cfg)
	if err != nil {
		return err
	}

	triggers, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("👀 Слежение за %s (Ctrl+C для выхода)\n", cfg.SourceDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
			fmt.Println("\n🔁 Обнаружены новые файлы, повторный запуск")
			if _, err := p.Run(ctx, cfg.SourceDir, cfg.TargetDir, false); err != nil {
				fmt.Fprintf(os.Stderr, "❌ Ошибка повторного запуска: %v\n", err)
			}
		}
	}
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docnormalizer %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}

/*
Возможные расширения:
- Добавить команду retry для повторной конвертации failed строк
- Добавить команду export для выгрузки леджера в JSON
*/
