package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avkuznecov/docnormalizer/internal/config"
	"github.com/avkuznecov/docnormalizer/internal/converter"
	"github.com/avkuznecov/docnormalizer/internal/ledger"
	"github.com/avkuznecov/docnormalizer/internal/scanner"
)

// fakeIdentifier имитирует внешний идентификатор: обходит исходную
// директорию и строит tsv по таблицам расширение -> mime / формат.
type fakeIdentifier struct {
	mimeByExt   map[string]string
	formatByExt map[string]string
}

func (f *fakeIdentifier) Run(sourceDir, targetDir, tsvPath string) error {
	var b strings.Builder
	b.WriteString("filename\tfilesize\tmime\tid\tversion\n")

	err := scanner.Walk(sourceDir, func(relPath string, info os.FileInfo) error {
		ext := strings.TrimPrefix(filepath.Ext(relPath), ".")
		fmt.Fprintf(&b, "%s\t%d\t%s\t%s\t\n",
			relPath, info.Size(), f.mimeByExt[ext], f.formatByExt[ext])
		return nil
	})
	if err != nil {
		return err
	}
	return os.WriteFile(tsvPath, []byte(b.String()), 0644)
}

// defaultFakeIdentifier покрывает расширения, встречающиеся в тестах.
func defaultFakeIdentifier() *fakeIdentifier {
	return &fakeIdentifier{
		mimeByExt: map[string]string{
			"txt": "text/plain; charset=utf-8",
			"db":  "application/octet-stream",
			"zip": "application/zip",
			"bin": "n/a",
			"odd": "application/x-unknown",
			"xml": "",
		},
		formatByExt: map[string]string{
			"txt": "fmt/999",
			"db":  "fmt/111",
			"zip": "x-fmt/263",
			"bin": "fmt/000",
			"odd": "fmt/777",
			"xml": "fmt/999",
		},
	}
}

// copySpecs описывает конвертер txt -> pdf через cp.
func copySpecs() map[string]converter.Spec {
	return map[string]converter.Spec{
		"fmt/999": {Command: "cp <source> <target>", Extension: "pdf"},
	}
}

func newTestEnv(t *testing.T, specs map[string]converter.Spec) (*Pipeline, *ledger.Store, string, string) {
	t.Helper()

	tmp := t.TempDir()
	sourceDir := filepath.Join(tmp, "in")
	targetDir := filepath.Join(tmp, "out")
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		t.Fatalf("не удалось создать исходную директорию: %v", err)
	}

	store, err := ledger.Open(filepath.Join(tmp, "state"), "conversions.db", true)
	if err != nil {
		t.Fatalf("не удалось открыть леджер: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DefaultConfig()
	cfg.SourceDir = sourceDir
	cfg.TargetDir = targetDir
	cfg.TimeoutSec = 30
	cfg.NoProgress = true

	p := New(cfg, converter.NewRegistry(specs), store, defaultFakeIdentifier())
	return p, store, sourceDir, targetDir
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("не удалось создать директорию для %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("не удалось записать %s: %v", path, err)
	}
}

func mustRun(t *testing.T, p *Pipeline, sourceDir, targetDir string) *RunResult {
	t.Helper()
	res, err := p.Run(context.Background(), sourceDir, targetDir, false)
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	return res
}

func rowResult(t *testing.T, store *ledger.Store, sourceDir, relPath string) ledger.Result {
	t.Helper()
	rows, err := store.ConvertedRows(sourceDir)
	if err != nil {
		t.Fatalf("ConvertedRows() вернул ошибку: %v", err)
	}
	for _, row := range rows {
		if row.SourceFilePath == relPath && row.Result != nil {
			return *row.Result
		}
	}
	t.Fatalf("строка %s не найдена среди конвертированных", relPath)
	return ""
}

func TestRunSuccess(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "docs", "a.txt"), "привет")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgSuccess {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgSuccess)
	}
	if res.HadErrors {
		t.Error("HadErrors = true, ожидалось false")
	}

	artifact := filepath.Join(targetDir, "docs", "a.txt.pdf")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("целевой артефакт не создан: %v", err)
	}
	if _, err := os.Stat(targetDir + ".tsv"); !os.IsNotExist(err) {
		t.Error("промежуточный tsv не удалён после загрузки")
	}

	if got := rowResult(t, store, sourceDir, filepath.Join("docs", "a.txt")); got != ledger.ResultSuccessful {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultSuccessful)
	}
	if stats := p.GetStats(); stats.Converted != 1 {
		t.Errorf("Converted = %d, ожидалось 1", stats.Converted)
	}
}

func TestRunStripsMimeParameters(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")

	mustRun(t, p, sourceDir, targetDir)

	rows, err := store.ConvertedRows(sourceDir)
	if err != nil {
		t.Fatalf("ConvertedRows() вернул ошибку: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("строк = %d, ожидалась 1", len(rows))
	}
	if rows[0].MimeType != "text/plain" {
		t.Errorf("mime = %q, ожидалось text/plain без параметров", rows[0].MimeType)
	}
}

func TestRunInfersXMLMime(t *testing.T) {
	// Идентификатор распознаёт xml только по декларации: файл без неё
	// приходит с пустым mime и должен получить application/xml по расширению
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "data.xml"), "<root/>")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgSuccess {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgSuccess)
	}

	rows, err := store.ConvertedRows(sourceDir)
	if err != nil {
		t.Fatalf("ConvertedRows() вернул ошибку: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("строк = %d, ожидалась 1", len(rows))
	}
	if rows[0].MimeType != "application/xml" {
		t.Errorf("mime = %q, ожидалось application/xml по расширению", rows[0].MimeType)
	}
	if rows[0].Result == nil || *rows[0].Result != ledger.ResultSuccessful {
		t.Errorf("результат = %v, ожидалось %q", rows[0].Result, ledger.ResultSuccessful)
	}
}

func TestRunFailedCommand(t *testing.T) {
	// Команда завершается успешно, но целевой файл не создаёт
	specs := map[string]converter.Spec{
		"fmt/999": {Command: "true", Extension: "pdf"},
	}
	p, store, sourceDir, targetDir := newTestEnv(t, specs)
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgPreviously {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgPreviously)
	}
	if !res.HadErrors {
		t.Error("HadErrors = false, ожидалось true")
	}
	if got := rowResult(t, store, sourceDir, "a.txt"); got != ledger.ResultFailed {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultFailed)
	}
}

func TestRunPartialConversion(t *testing.T) {
	p, _, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "good.txt"), "x")
	mustWrite(t, filepath.Join(sourceDir, "strange.odd"), "x")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgPartial {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgPartial)
	}
	if !res.HadErrors {
		t.Error("HadErrors = false, ожидалось true")
	}
}

func TestRunNotSupportedCopiesThrough(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "strange.odd"), "содержимое")

	res := mustRun(t, p, sourceDir, targetDir)

	if !res.HadErrors {
		t.Error("HadErrors = false, ожидалось true")
	}
	if got := rowResult(t, store, sourceDir, "strange.odd"); got != ledger.ResultNotSupported {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultNotSupported)
	}

	copied, err := os.ReadFile(filepath.Join(targetDir, "strange.odd"))
	if err != nil {
		t.Fatalf("копия не создана: %v", err)
	}
	if string(copied) != "содержимое" {
		t.Error("содержимое копии не совпадает с исходным")
	}
}

func TestRunManualConverter(t *testing.T) {
	specs := map[string]converter.Spec{
		"fmt/999": {Command: converter.ManualCommand},
	}
	p, store, sourceDir, targetDir := newTestEnv(t, specs)
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgSuccess {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgSuccess)
	}
	if got := rowResult(t, store, sourceDir, "a.txt"); got != ledger.ResultManual {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultManual)
	}
	if _, err := os.Stat(filepath.Join(targetDir, "a.txt")); err != nil {
		t.Errorf("копия для ручной обработки не создана: %v", err)
	}
}

func TestRunNotADocument(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "noise.bin"), "x")

	res := mustRun(t, p, sourceDir, targetDir)

	// Строка терминальна, но конвертаций не было
	if res.Message != MsgPreviously {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgPreviously)
	}
	if res.HadErrors {
		t.Error("HadErrors = true, ожидалось false")
	}
	if got := rowResult(t, store, sourceDir, "noise.bin"); got != ledger.ResultNotADocument {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultNotADocument)
	}
	if _, err := os.Stat(filepath.Join(targetDir, "noise.bin")); !os.IsNotExist(err) {
		t.Error("для не-документа не должно быть целевого артефакта")
	}
}

func TestRunThumbsDbRemoved(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")
	mustWrite(t, filepath.Join(sourceDir, "Thumbs.db"), "мусор")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgSuccess {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgSuccess)
	}
	if _, err := os.Stat(filepath.Join(sourceDir, "Thumbs.db")); !os.IsNotExist(err) {
		t.Error("Thumbs.db не удалён из исходной директории")
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats() вернул ошибку: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("строк в леджере = %d, ожидалась 1", stats.Total)
	}
}

func TestRunEmptyIdentification(t *testing.T) {
	p, _, sourceDir, targetDir := newTestEnv(t, copySpecs())

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgError {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgError)
	}
}

func TestRunReconciliationMismatch(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")

	// Файл появился после идентификации: tsv уже лежит на диске
	// и описывает только часть файлов
	mustWrite(t, targetDir+".tsv", "filename\tfilesize\tmime\tid\nold.txt\t1\ttext/plain\tfmt/999\n")
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		t.Fatalf("не удалось создать целевую директорию: %v", err)
	}
	mustWrite(t, filepath.Join(sourceDir, "b.txt"), "x")

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgError {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgError)
	}

	// До сверки конвертация не доходит
	rows, err := store.ConvertedRows(sourceDir)
	if err != nil {
		t.Fatalf("ConvertedRows() вернул ошибку: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("конвертированных строк = %d, ожидалось 0", len(rows))
	}
}

func TestRunResume(t *testing.T) {
	p, _, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "a.txt"), "x")

	first := mustRun(t, p, sourceDir, targetDir)
	if first.Message != MsgSuccess {
		t.Fatalf("первый запуск: Message = %q, ожидалось %q", first.Message, MsgSuccess)
	}

	// Повторный запуск не трогает терминальные строки
	second := mustRun(t, p, sourceDir, targetDir)
	if second.Message != MsgPreviously {
		t.Errorf("второй запуск: Message = %q, ожидалось %q", second.Message, MsgPreviously)
	}
	if stats := p.GetStats(); stats.Converted != 1 {
		t.Errorf("Converted = %d, ожидалось 1 после двух запусков", stats.Converted)
	}
}

func TestRunZipContainer(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("inner.txt")
	if err != nil {
		t.Fatalf("не удалось создать запись архива: %v", err)
	}
	if _, err := w.Write([]byte("внутри")); err != nil {
		t.Fatalf("не удалось записать в архив: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("не удалось закрыть архив: %v", err)
	}
	mustWrite(t, filepath.Join(sourceDir, "box.zip"), buf.String())

	res := mustRun(t, p, sourceDir, targetDir)

	if res.Message != MsgSuccess {
		t.Errorf("Message = %q, ожидалось %q", res.Message, MsgSuccess)
	}
	if got := rowResult(t, store, sourceDir, "box.zip"); got != ledger.ResultSuccessful {
		t.Errorf("результат контейнера = %q, ожидалось %q", got, ledger.ResultSuccessful)
	}

	// Единственный артефакт распаковки кладётся рядом без повторной упаковки
	if _, err := os.Stat(filepath.Join(targetDir, "box.zip.pdf")); err != nil {
		t.Errorf("артефакт распаковки не создан: %v", err)
	}

	// Рабочая область распаковки подчищена
	entries, err := os.ReadDir(filepath.Join(targetDir, config.StateDirName))
	if err == nil {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "expand-") {
				t.Errorf("рабочая область распаковки не удалена: %s", e.Name())
			}
		}
	}
}

func TestRunCorruptZipFails(t *testing.T) {
	p, store, sourceDir, targetDir := newTestEnv(t, copySpecs())
	mustWrite(t, filepath.Join(sourceDir, "box.zip"), "это не архив")

	res := mustRun(t, p, sourceDir, targetDir)

	if !res.HadErrors {
		t.Error("HadErrors = false, ожидалось true")
	}
	if got := rowResult(t, store, sourceDir, "box.zip"); got != ledger.ResultFailed {
		t.Errorf("результат = %q, ожидалось %q", got, ledger.ResultFailed)
	}
}

func TestReportConvertedLedgerError(t *testing.T) {
	p, store, sourceDir, _ := newTestEnv(t, copySpecs())

	// Ошибка чтения леджера не должна искажать рабочий счётчик
	if err := store.Close(); err != nil {
		t.Fatalf("Close() вернул ошибку: %v", err)
	}

	if got := p.reportConverted(sourceDir, 5, false); got != 5 {
		t.Errorf("reportConverted() = %d, ожидалось 5 без изменений", got)
	}
}

func TestTargetRelPath(t *testing.T) {
	tests := []struct {
		name       string
		relPath    string
		currentExt string
		targetExt  string
		want       string
	}{
		{"смена расширения", "docs/a.doc", "doc", "pdf", "docs/a.doc.pdf"},
		{"то же расширение", "a.pdf", "pdf", "pdf", "a.pdf"},
		{"регистр расширения", "a.PDF", "PDF", "pdf", "a.PDF"},
		{"пустое целевое", "a.doc", "doc", "", "a.doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := targetRelPath(tt.relPath, tt.currentExt, tt.targetExt); got != tt.want {
				t.Errorf("targetRelPath() = %q, ожидалось %q", got, tt.want)
			}
		})
	}
}

func TestConversionResult(t *testing.T) {
	tests := []struct {
		name         string
		convertedNow bool
		hadErrors    bool
		want         string
	}{
		{"всё успешно", true, false, MsgSuccess},
		{"частично", true, true, MsgPartial},
		{"ранее", false, false, MsgPreviously},
		{"только ошибки", false, true, MsgPreviously},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conversionResult(tt.convertedNow, tt.hadErrors); got != tt.want {
				t.Errorf("conversionResult() = %q, ожидалось %q", got, tt.want)
			}
		})
	}
}
