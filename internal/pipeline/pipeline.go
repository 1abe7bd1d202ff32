// Package pipeline содержит оркестратор конвейера конвертации.
//
// Оркестратор сверяет результат идентификации с леджером и файловой
// системой, последовательно обходит неконвертированные строки,
// диспетчеризует каждую (конвертер, распаковка контейнера или копирование)
// и фиксирует итог запуска.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avkuznecov/docnormalizer/internal/archive"
	"github.com/avkuznecov/docnormalizer/internal/config"
	"github.com/avkuznecov/docnormalizer/internal/converter"
	"github.com/avkuznecov/docnormalizer/internal/fsutil"
	"github.com/avkuznecov/docnormalizer/internal/identify"
	"github.com/avkuznecov/docnormalizer/internal/ledger"
	"github.com/avkuznecov/docnormalizer/internal/progress"
	"github.com/avkuznecov/docnormalizer/internal/scanner"
)

// Итоговые сообщения запуска.
const (
	// MsgError - запуск прерван до конвертации (нет строк или рассинхрон).
	MsgError = "Ошибка"

	// MsgSuccess - все новые файлы конвертированы успешно.
	MsgSuccess = "Все файлы успешно конвертированы."

	// MsgPartial - часть файлов не конвертирована.
	MsgPartial = "Не все файлы были конвертированы. Подробности в таблице леджера."

	// MsgPreviously - новых конвертаций не было.
	MsgPreviously = "Все файлы конвертированы ранее."
)

// mimeNoDocument - сигнальное значение mime-типа: файл не содержит документа.
const mimeNoDocument = "n/a"

// reservedFileName - служебный файл ОС, удаляемый без конвертации.
const reservedFileName = "Thumbs.db"

// Identifier - внешний идентификатор форматов.
// Создаёт tsv-файл с результатами идентификации исходной директории.
type Identifier interface {
	Run(sourceDir, targetDir, tsvPath string) error
}

// RunResult содержит итог одного запуска конвейера.
type RunResult struct {
	// Message - итоговое сообщение запуска.
	Message string

	// FileCount - количество файлов, обработанных в этом запуске.
	FileCount int

	// HadErrors - true, если хотя бы одна строка завершилась
	// как failed или not_supported.
	HadErrors bool
}

// Stats содержит счётчики обработки за время жизни конвейера.
type Stats struct {
	// Converted - строк конвертировано (successful + manual).
	Converted int64

	// Failed - строк с ошибками конвертации.
	Failed int64

	// NotSupported - строк без зарегистрированного конвертера.
	NotSupported int64
}

// Pipeline - оркестратор конвейера конвертации.
// Обработка однопоточная и последовательная: строка идентифицируется,
// конвертируется и сохраняется до перехода к следующей.
type Pipeline struct {
	cfg        *config.Config
	registry   *converter.Registry
	store      *ledger.Store
	identifier Identifier
	runner     *converter.Runner
	stats      Stats
}

// New создаёт новый Pipeline. Все зависимости передаются явно,
// без глобального состояния - тесты могут подменять реестр и идентификатор.
func New(cfg *config.Config, registry *converter.Registry, store *ledger.Store, identifier Identifier) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		registry:   registry,
		store:      store,
		identifier: identifier,
		runner:     converter.NewRunner(time.Duration(cfg.TimeoutSec) * time.Second),
	}
}

// GetStats возвращает текущие счётчики обработки.
func (p *Pipeline) GetStats() Stats {
	return p.stats
}

// Run выполняет один запуск конвейера над парой директорий.
// zipped=true помечает вложенный запуск внутри распаковки архива:
// пофайловый вывод подавляется, правила сверки те же.
func (p *Pipeline) Run(ctx context.Context, sourceDir, targetDir string, zipped bool) (*RunResult, error) {
	tsvPath := targetDir + ".tsv"

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать целевую директорию: %w", err)
	}

	// Идентификация пропускается, если артефакт уже есть на диске
	if !fsutil.Exists(tsvPath) {
		if err := p.identifier.Run(sourceDir, targetDir, tsvPath); err != nil {
			return nil, err
		}
	}

	rowCount, err := p.ingestIdentification(tsvPath, sourceDir)
	if err != nil {
		return nil, err
	}

	fileCount, err := scanner.Count(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("обход исходной директории: %w", err)
	}

	// Сверка: конвертация по устаревшему или неполному списку строк
	// молча пропустила бы или задвоила файлы
	if rowCount == 0 {
		fmt.Println("Нет файлов для конвертации. Выход.")
		return &RunResult{Message: MsgError, FileCount: fileCount}, nil
	}
	if fileCount != rowCount {
		fmt.Printf("Строк идентификации: %d\n", rowCount)
		fmt.Printf("Файлов на диске: %d\n", fileCount)
		fmt.Println("Список идентифицированных файлов не совпадает с файлами на диске. Выход.")
		return &RunResult{Message: MsgError, FileCount: fileCount}, nil
	}

	if !zipped {
		fmt.Println("Конвертация файлов..")
	}

	fileCount = p.reportConverted(sourceDir, fileCount, zipped)

	rows, err := p.store.UnconvertedRows(sourceDir)
	if err != nil {
		return nil, err
	}

	var bar *progress.Bar
	if !zipped {
		bar = progress.New(progress.Options{
			Total:    int64(len(rows)),
			Disabled: p.cfg.NoProgress,
		})
	}

	convertedNow := false
	hadErrors := false
	rowNum := 0
	remaining := len(rows)

	for i := range rows {
		row := &rows[i]

		// Служебные файлы ОС удаляются с диска и из леджера,
		// терминальный результат для них не фиксируется
		if filepath.Base(row.SourceFilePath) == reservedFileName {
			_ = fsutil.RemoveFile(filepath.Join(sourceDir, row.SourceFilePath))
			if err := p.store.DeleteRow(row.SourceFilePath, sourceDir); err != nil {
				return nil, err
			}
			fileCount--
			remaining--
			if bar != nil {
				bar.SetTotal(int64(remaining))
			}
			continue
		}

		rowNum++
		result, err := p.convertFile(ctx, row, rowNum, fileCount, sourceDir, targetDir, zipped, bar)
		if err != nil {
			return nil, err
		}

		if result == ledger.ResultFailed || result == ledger.ResultNotSupported {
			hadErrors = true
			p.narrate(bar, "%s %s\n", row.MimeType, result)
		}
		if result.Converted() {
			convertedNow = true
		}
	}

	if bar != nil {
		bar.Finish()
	}

	msg := conversionResult(convertedNow, hadErrors)
	if !zipped {
		fmt.Println("\n" + msg)
	}

	return &RunResult{Message: msg, FileCount: fileCount, HadErrors: hadErrors}, nil
}

// ingestIdentification загружает tsv-файл идентификации в леджер.
// Загрузка идемпотентна: уже известные пути остаются нетронутыми.
// Промежуточный tsv удаляется только после успешной загрузки.
func (p *Pipeline) ingestIdentification(tsvPath, sourceDir string) (int, error) {
	rows, err := identify.ParseTSV(tsvPath, sourceDir)
	if err != nil {
		return 0, err
	}
	if err := p.store.AppendRows(rows); err != nil {
		return 0, err
	}
	if err := fsutil.RemoveFile(tsvPath); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// reportConverted сообщает, сколько файлов уже конвертировано ранее,
// и вычитает их из рабочего счётчика.
func (p *Pipeline) reportConverted(sourceDir string, fileCount int, zipped bool) int {
	already, err := p.store.CountConverted(sourceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Не удалось посчитать обработанные строки: %v\n", err)
		return fileCount
	}
	if already == 0 {
		return fileCount
	}

	before := fileCount
	fileCount -= int(already)
	if !zipped {
		fmt.Printf("(%d/%d) файлов уже конвертировано в %s\n", already, before, sourceDir)
	}
	return fileCount
}

// convertFile обрабатывает одну строку леджера: нормализует mime-тип,
// диспетчеризует конвертацию и сохраняет терминальный результат.
func (p *Pipeline) convertFile(
	ctx context.Context,
	row *ledger.Row,
	rowNum, fileCount int,
	sourceDir, targetDir string,
	zipped bool,
	bar *progress.Bar,
) (ledger.Result, error) {
	// Параметры mime-типа после ';' отбрасываются
	mime, _, _ := strings.Cut(row.MimeType, ";")
	mime = strings.TrimSpace(mime)

	// Идентификатор распознаёт xml только по декларации, не по расширению
	if mime == "" && strings.EqualFold(filepath.Ext(row.SourceFilePath), ".xml") {
		mime = "application/xml"
	}
	row.MimeType = mime

	if !zipped {
		p.narrate(bar, "(%d/%d): .../%s (%s)\n", rowNum, fileCount, row.SourceFilePath, mime)
	}

	var result ledger.Result
	var normRel string

	switch {
	case mime == mimeNoDocument:
		result = ledger.ResultNotADocument
	case isZipMime(mime):
		result, normRel = p.expandContainer(ctx, row, sourceDir, targetDir)
	default:
		result, normRel = p.dispatchConverter(ctx, row, sourceDir, targetDir, bar)
	}

	switch {
	case result.Converted():
		p.stats.Converted++
	case result == ledger.ResultFailed:
		p.stats.Failed++
	case result == ledger.ResultNotSupported:
		p.stats.NotSupported++
	}

	row.Result = &result
	if normRel != "" {
		norm := filepath.ToSlash(normRel)
		row.NormFilePath = &norm
	}
	if err := p.store.UpdateRow(*row); err != nil {
		return result, err
	}

	if bar != nil {
		bar.Increment()
	}
	return result, nil
}

// expandContainer обрабатывает zip-контейнер рекурсивным вложенным запуском.
// Неудача распаковки деградирует строку контейнера в failed и не
// прерывает внешний запуск.
func (p *Pipeline) expandContainer(ctx context.Context, row *ledger.Row, sourceDir, targetDir string) (ledger.Result, string) {
	expander := archive.NewExpander(p.cfg.MaxDepth, func(src, tgt string) (bool, error) {
		res, err := p.Run(ctx, src, tgt, true)
		if err != nil {
			return false, err
		}
		return res.Message != MsgError && !res.HadErrors, nil
	})

	outcome, err := expander.Expand(row.SourceFilePath, sourceDir, targetDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", row.SourceFilePath, err)
		return ledger.ResultFailed, ""
	}
	if !outcome.OK {
		return ledger.ResultFailed, ""
	}
	return ledger.ResultSuccessful, outcome.NormRelPath
}

// dispatchConverter разрешает конвертер по формату и запускает внешнюю
// команду конвертации.
func (p *Pipeline) dispatchConverter(
	ctx context.Context,
	row *ledger.Row,
	sourceDir, targetDir string,
	bar *progress.Bar,
) (ledger.Result, string) {
	srcPath := filepath.Join(sourceDir, row.SourceFilePath)
	currentExt := strings.TrimPrefix(filepath.Ext(row.SourceFilePath), ".")

	resolved, ok := p.registry.Resolve(row.FormatID, currentExt)
	if !ok {
		// Формат без конвертера: файл копируется без изменений,
		// запуск продолжается, но помечается как имевший ошибки
		if err := fsutil.CopyFile(srcPath, filepath.Join(targetDir, row.SourceFilePath)); err != nil {
			return ledger.ResultFailed, ""
		}
		return ledger.ResultNotSupported, row.SourceFilePath
	}

	if resolved.Command == converter.ManualCommand {
		if err := fsutil.CopyFile(srcPath, filepath.Join(targetDir, row.SourceFilePath)); err != nil {
			return ledger.ResultFailed, ""
		}
		return ledger.ResultManual, row.SourceFilePath
	}

	normRel := targetRelPath(row.SourceFilePath, currentExt, resolved.TargetExt)
	dstPath := filepath.Join(targetDir, normRel)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return ledger.ResultFailed, ""
	}

	command := converter.Substitute(resolved.Command, srcPath, dstPath, row.MimeType, resolved.TargetExt)
	runResult := p.runner.Run(ctx, command)

	// Единственный критерий успеха - существование целевого файла.
	// Таймаут и код выхода конвертера сами по себе не фатальны.
	if !fsutil.Exists(dstPath) {
		if p.cfg.Verbose && runResult.Stderr != "" {
			p.narrate(bar, "stderr %s: %s\n", row.SourceFilePath, runResult.Stderr)
		}
		return ledger.ResultFailed, ""
	}
	return ledger.ResultSuccessful, normRel
}

// targetRelPath строит путь к целевому файлу относительно целевой
// директории: при смене расширения новое дописывается к имени.
func targetRelPath(relPath, currentExt, targetExt string) string {
	if targetExt == "" || strings.EqualFold(currentExt, targetExt) {
		return relPath
	}
	return relPath + "." + targetExt
}

// isZipMime возвращает true для mime-типов zip-контейнеров.
func isZipMime(mime string) bool {
	return mime == "application/zip" || mime == "application/x-zip-compressed"
}

// conversionResult строит итоговое сообщение запуска.
func conversionResult(convertedNow, hadErrors bool) string {
	if !convertedNow {
		return MsgPreviously
	}
	if hadErrors {
		return MsgPartial
	}
	return MsgSuccess
}

// narrate выводит сообщение, не ломая прогресс-бар.
func (p *Pipeline) narrate(bar *progress.Bar, format string, args ...interface{}) {
	if bar != nil {
		bar.WriteMessage(format, args...)
		return
	}
	fmt.Printf(format, args...)
}

/*
Возможные расширения:
- Добавить повторную попытку для failed строк отдельной командой
- Добавить сухой прогон (dry-run) без запуска конвертеров
*/
