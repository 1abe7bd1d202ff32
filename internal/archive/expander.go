// Package archive реализует рекурсивную распаковку и переупаковку zip-контейнеров.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/avkuznecov/docnormalizer/internal/config"
	"github.com/avkuznecov/docnormalizer/internal/fsutil"
)

// RunFunc запускает вложенный конвейер конвертации над распакованной
// директорией как над самостоятельным исходным деревом.
// Возвращает true, если все файлы вложенного запуска обработаны успешно.
type RunFunc func(sourceDir, targetDir string) (bool, error)

// Outcome содержит результат распаковки одного контейнера.
type Outcome struct {
	// OK - контейнер успешно конвертирован и переупакован.
	OK bool

	// ArtifactCount - количество конвертированных файлов.
	ArtifactCount int

	// NormRelPath - путь к результату относительно целевой директории
	// (только при OK).
	NormRelPath string
}

// Expander распаковывает контейнеры, конвертирует их содержимое вложенным
// запуском конвейера и упаковывает результат обратно.
type Expander struct {
	// maxDepth - максимальная глубина вложенности архивов.
	maxDepth int

	// run - вложенный запуск конвейера.
	run RunFunc
}

// NewExpander создаёт новый Expander.
func NewExpander(maxDepth int, run RunFunc) *Expander {
	if maxDepth < 1 {
		maxDepth = 10
	}
	return &Expander{maxDepth: maxDepth, run: run}
}

// Expand обрабатывает один контейнер:
// рекурсивно распаковывает его во временную директорию, прогоняет вложенный
// конвейер, затем кладёт результат рядом с позицией контейнера в целевой
// директории: единственный артефакт копируется как <имя>.zip.<расширение>,
// несколько артефактов упаковываются обратно в <имя>.zip.
// Все временные директории удаляются на обоих ветках (успех и неудача).
func (e *Expander) Expand(containerRelPath, sourceDir, targetDir string) (outcome Outcome, err error) {
	containerPath := filepath.Join(sourceDir, containerRelPath)

	workBase := filepath.Join(targetDir, config.StateDirName, "expand-"+uuid.NewString())
	extractDir := filepath.Join(workBase, "source")
	normDir := filepath.Join(workBase, "norm")

	// Временные пути удаляются безусловно
	defer func() {
		_ = fsutil.RemovePath(workBase)
		_ = fsutil.RemoveFile(normDir + ".tsv")
	}()

	if err := e.extractNested(containerPath, extractDir, 1); err != nil {
		return Outcome{}, fmt.Errorf("распаковка %s: %w", containerRelPath, err)
	}

	ok, err := e.run(extractDir, normDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("вложенный запуск для %s: %w", containerRelPath, err)
	}
	if !ok {
		return Outcome{}, nil
	}

	artifacts, err := collectFiles(normDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("обход результатов %s: %w", containerRelPath, err)
	}
	if len(artifacts) == 0 {
		return Outcome{}, nil
	}

	outcome = Outcome{OK: true, ArtifactCount: len(artifacts)}

	if len(artifacts) == 1 {
		// Единственный артефакт кладётся рядом как <имя>.zip.<расширение>
		ext := strings.TrimPrefix(filepath.Ext(artifacts[0]), ".")
		outcome.NormRelPath = containerRelPath + "." + ext
		dst := filepath.Join(targetDir, outcome.NormRelPath)
		if err := fsutil.CopyFile(artifacts[0], dst); err != nil {
			return Outcome{}, fmt.Errorf("копирование артефакта %s: %w", containerRelPath, err)
		}
		return outcome, nil
	}

	// Несколько артефактов упаковываются обратно в zip
	outcome.NormRelPath = containerRelPath
	dst := filepath.Join(targetDir, containerRelPath)
	if err := zipDir(normDir, dst); err != nil {
		return Outcome{}, fmt.Errorf("упаковка %s: %w", containerRelPath, err)
	}
	return outcome, nil
}

// extractNested рекурсивно распаковывает контейнер: содержимое извлекается
// в destDir, затем найденные внутри zip-файлы извлекаются на своё место,
// а сам вложенный контейнер заменяется извлечённым содержимым.
// Глубина вложенности ограничена, чтобы зацикленные архивы не
// распаковывались бесконечно.
func (e *Expander) extractNested(zipPath, destDir string, depth int) error {
	if depth > e.maxDepth {
		return fmt.Errorf("превышена глубина вложенности архивов (%d)", e.maxDepth)
	}

	if err := extractZip(zipPath, destDir); err != nil {
		return err
	}

	var nested []string
	err := filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			nested = append(nested, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range nested {
		if err := e.extractNested(path, filepath.Dir(path), depth+1); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// extractZip извлекает содержимое zip-архива в destDir.
func extractZip(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("не удалось открыть архив %s: %w", zipPath, err)
	}
	defer func() { _ = reader.Close() }()

	for _, file := range reader.File {
		if err := extractEntry(file, destDir); err != nil {
			return err
		}
	}
	return nil
}

// extractEntry извлекает одну запись архива с защитой от zip-slip.
func extractEntry(file *zip.File, destDir string) error {
	dst := filepath.Join(destDir, filepath.Clean(file.Name))
	if !strings.HasPrefix(dst, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("недопустимый путь в архиве: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("не удалось прочитать запись %s: %w", file.Name, err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, src)
	return err
}

// zipDir упаковывает содержимое директории в zip-архив.
func zipDir(srcDir, zipPath string) error {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0755); err != nil {
		return err
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("не удалось создать архив %s: %w", zipPath, err)
	}
	defer func() { _ = out.Close() }()

	writer := zip.NewWriter(out)
	defer func() { _ = writer.Close() }()

	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		return err
	}

	return writer.Close()
}

// collectFiles возвращает пути всех обычных файлов директории.
func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == config.StateDirName {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

/*
Возможные расширения:
- Добавить поддержку tar/tar.gz контейнеров
- Добавить сохранение атрибутов файлов при переупаковке
*/
