package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/avkuznecov/docnormalizer/internal/config"
	"github.com/avkuznecov/docnormalizer/internal/converter"
	"github.com/avkuznecov/docnormalizer/internal/ledger"
)

// statsOrder - порядок статусов в выводе команды stats.
var statsOrder = []ledger.Result{
	ledger.ResultSuccessful,
	ledger.ResultManual,
	ledger.ResultNotSupported,
	ledger.ResultNotADocument,
	ledger.ResultFailed,
}

// newStatsCmd создаёт команду stats.
func newStatsCmd() *cobra.Command {
	var dbPath, dbName string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику леджера",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Открытие с resume=true: статистика не должна чистить леджер
			store, err := ledger.Open(dbPath, dbName, true)
			if err != nil {
				return fmt.Errorf("не удалось открыть леджер: %w", err)
			}
			defer func() { _ = store.Close() }()

			stats, err := store.GetStats()
			if err != nil {
				return fmt.Errorf("не удалось получить статистику: %w", err)
			}

			rows := [][]string{
				{"всего", fmt.Sprintf("%d", stats.Total)},
				{"не обработано", fmt.Sprintf("%d", stats.Unconverted)},
			}
			for _, result := range statsOrder {
				rows = append(rows, []string{string(result), fmt.Sprintf("%d", stats.ByResult[result])})
			}

			fmt.Printf("📊 Леджер: %s\n", store.Path())
			fmt.Println(renderTable([]string{"Статус", "Строк"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "", "Директория SQLite-леджера")
	cmd.Flags().StringVar(&dbName, "db-name", "conversions.db", "Имя файла SQLite-леджера")
	_ = cmd.MarkFlagRequired("db-path")

	return cmd
}

// newConvertersCmd создаёт команду converters.
func newConvertersCmd() *cobra.Command {
	var convertersPath string

	cmd := &cobra.Command{
		Use:   "converters",
		Short: "Показать таблицу конвертеров",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := converter.LoadRegistry(convertersPath)
			if err != nil {
				return fmt.Errorf("не удалось загрузить таблицу конвертеров: %w", err)
			}

			var rows [][]string
			for _, formatID := range registry.FormatIDs() {
				spec, _ := registry.Get(formatID)
				command := spec.Command
				if len(command) > 60 {
					command = command[:57] + "..."
				}
				rows = append(rows, []string{formatID, spec.Extension, command})
			}

			fmt.Printf("🔧 Зарегистрировано конвертеров: %d\n", registry.Len())
			fmt.Println(renderTable(
				[]string{"Формат", "Расширение", "Команда"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&convertersPath, "converters", "", "Путь к yaml-файлу с таблицей конвертеров")

	return cmd
}

// newConfigCmd создаёт команду config с подкомандой init.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом свойств",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Создать пример файла свойств application.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultPropertiesFile
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s уже существует (перезапись через --force)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0644); err != nil {
				return fmt.Errorf("не удалось записать %s: %w", path, err)
			}
			fmt.Printf("✅ Создан %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Перезаписать существующий файл")

	cmd.AddCommand(initCmd)
	return cmd
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable строит текстовую таблицу для вывода в терминал.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
