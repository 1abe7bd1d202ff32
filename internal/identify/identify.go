// Package identify отвечает за идентификацию форматов файлов внешним инструментом.
package identify

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avkuznecov/docnormalizer/internal/ledger"
)

// Tool запускает внешний идентификатор форматов над исходной директорией
// и нормализует его табличный вывод в строки леджера.
type Tool struct {
	// sfPath - путь к бинарнику siegfried.
	// Пустая строка означает fallback через file(1).
	sfPath string
}

// New создаёт новый Tool. sfPath="" включает fallback через file(1).
func New(sfPath string) *Tool {
	return &Tool{sfPath: sfPath}
}

// UsesFallback возвращает true, если используется file(1) вместо siegfried.
func (t *Tool) UsesFallback() bool {
	return t.sfPath == ""
}

// Run запускает идентификацию исходной директории и создаёт tsvPath.
// Промежуточный csv внутри целевой директории удаляется; сам tsv-файл
// удаляет вызывающая сторона после успешной загрузки в леджер.
func (t *Tool) Run(sourceDir, targetDir, tsvPath string) error {
	csvPath := filepath.Join(targetDir, "siegfried.csv")

	var err error
	if t.UsesFallback() {
		err = t.runFileCommand(sourceDir, targetDir, csvPath)
	} else {
		err = t.runSiegfried(sourceDir, csvPath)
	}
	if err != nil {
		_ = os.Remove(csvPath)
		return fmt.Errorf("идентификация не удалась: %w", err)
	}

	if err := csvToTSV(csvPath, tsvPath); err != nil {
		_ = os.Remove(csvPath)
		return fmt.Errorf("идентификация не удалась: %w", err)
	}

	return os.Remove(csvPath)
}

// runSiegfried запускает sf над исходной директорией.
// Запуск выполняется из исходной директории, чтобы пути в выводе
// были относительными.
func (t *Tool) runSiegfried(sourceDir, csvPath string) error {
	out, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", csvPath, err)
	}
	defer func() { _ = out.Close() }()

	cmd := exec.Command(t.sfPath, "-multi", "256", "-csv", ".")
	cmd.Dir = sourceDir
	cmd.Stdout = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sf завершился с ошибкой: %w", err)
	}
	return nil
}

// runFileCommand - fallback: список файлов через обход директории,
// затем file(1) с определением mime-типа по первым 4096 байтам.
func (t *Tool) runFileCommand(sourceDir, targetDir, csvPath string) error {
	filelistPath := filepath.Join(targetDir, "filelist.txt")
	defer func() { _ = os.Remove(filelistPath) }()

	if err := writeFilelist(sourceDir, filelistPath); err != nil {
		return err
	}

	out, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", csvPath, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := fmt.Fprintln(out, "filename, mime"); err != nil {
		return err
	}

	cmd := exec.Command("file",
		"-e", "compress", "-F", ",", "-N", "-P", "bytes=4096",
		"--mime-type", "-f", filelistPath)
	cmd.Dir = sourceDir
	cmd.Stdout = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("file завершился с ошибкой: %w", err)
	}
	return nil
}

// writeFilelist записывает список обычных файлов директории (по одному на
// строку, с относительными путями), пропуская скрытые директории и файлы.
func writeFilelist(sourceDir, filelistPath string) error {
	f, err := os.Create(filelistPath)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", filelistPath, err)
	}
	defer func() { _ = f.Close() }()

	return filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != sourceDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f, rel)
		return err
	})
}

// csvToTSV перекодирует csv в tsv, убирая NUL-байты и пробелы после запятых.
func csvToTSV(csvPath, tsvPath string) error {
	in, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("не удалось открыть %s: %w", csvPath, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(tsvPath)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", tsvPath, err)
	}
	defer func() { _ = out.Close() }()

	reader := csv.NewReader(nulStripper{in})
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	writer := csv.NewWriter(out)
	writer.Comma = '\t'

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("не удалось прочитать csv: %w", err)
		}
		for i := range record {
			record[i] = strings.TrimLeft(record[i], " ")
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("не удалось записать tsv: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// nulStripper убирает NUL-байты из потока (siegfried иногда пишет их
// для файлов с повреждёнными именами).
type nulStripper struct {
	r io.Reader
}

func (n nulStripper) Read(p []byte) (int, error) {
	read, err := n.r.Read(p)
	kept := 0
	for i := 0; i < read; i++ {
		if p[i] != 0 {
			p[kept] = p[i]
			kept++
		}
	}
	return kept, err
}

// ParseTSV читает tsv-файл идентификации и нормализует его в строки леджера.
// Поддерживаются две формы заголовков: siegfried и tika/file fallback.
func ParseTSV(tsvPath, sourceDir string) ([]ledger.Row, error) {
	f, err := os.Open(tsvPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", tsvPath, err)
	}
	defer func() { _ = f.Close() }()

	return parseTable(f, sourceDir)
}

// Соответствие имён колонок двух возможных форм вывода каноническим полям.
var fieldRenames = map[string]string{
	"filename":                    "source_file_path",
	"tika_batch_fs_relative_path": "source_file_path",
	"filesize":                    "file_size",
	"mime":                        "mime_type",
	"content_type":                "mime_type",
	"id":                          "format_id",
	"version":                     "version",
}

// parseTable нормализует табличный поток идентификации.
func parseTable(r io.Reader, sourceDir string) ([]ledger.Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать заголовок: %w", err)
	}

	// Индексы канонических полей в текущей форме вывода
	fields := make(map[string]int)
	for i, name := range header {
		canonical, ok := fieldRenames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			// Колонки namespace/basis/warning и прочие отбрасываются
			continue
		}
		if _, seen := fields[canonical]; !seen {
			fields[canonical] = i
		}
	}
	if _, ok := fields["source_file_path"]; !ok {
		return nil, fmt.Errorf("в выводе идентификации нет колонки с путём файла")
	}

	cell := func(record []string, field string) string {
		idx, ok := fields[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []ledger.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}

		path := normalizePath(cell(record, "source_file_path"))

		// Пустые пути - заглушки директорий
		if path == "" {
			continue
		}
		// Листинги внутри уже идентифицированного контейнера
		// обрабатываются рекурсивной распаковкой, не плоским списком
		if strings.Contains(path, "#") {
			continue
		}

		size, _ := strconv.ParseInt(cell(record, "file_size"), 10, 64)

		row := ledger.Row{
			SourceFilePath:  path,
			SourceDirectory: sourceDir,
			FileSize:        size,
			MimeType:        cell(record, "mime_type"),
			FormatID:        cell(record, "format_id"),
			Version:         cell(record, "version"),
		}
		applyFormatCorrections(&row)

		rows = append(rows, row)
	}

	return rows, nil
}

// normalizePath приводит путь из вывода идентификатора к относительному
// виду без префикса "./".
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	if path == "." {
		return ""
	}
	return path
}

// applyFormatCorrections исправляет известные пропуски mime-типа, когда
// идентификатор формата определён уверенно.
func applyFormatCorrections(row *ledger.Row) {
	switch row.FormatID {
	case "x-fmt/18":
		// csv определяется только по расширению - трактуем как обычный текст
		row.MimeType = "text/plain"
	case "fmt/979":
		// siegfried не проставляет mime-тип для этого PUID
		row.MimeType = "application/xml"
	}
}

/*
Возможные расширения:
- Добавить поддержку вывода siegfried в формате JSON (-json)
- Добавить droid как альтернативный идентификатор
*/
