// Package ledger содержит логику работы с SQLite базой данных конвертации.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound возвращается при обновлении строки, которой нет в леджере.
var ErrNotFound = errors.New("строка не найдена в леджере")

// Store предоставляет доступ к леджеру конвертации.
// Леджер переживает перезапуски процесса и позволяет возобновлять
// прерванные запуски без повторной обработки уже конвертированных файлов.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open открывает (или создаёт) базу данных леджера и выполняет миграции.
// При resume=false всё прежнее содержимое леджера удаляется перед запуском.
// Store должен быть закрыт через Close на любом пути выхода (defer).
func Open(dbPath, dbName string, resume bool) (*Store, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	fullPath := filepath.Join(dbPath, dbName)

	// Один писатель на леджер: защищаемся advisory-блокировкой,
	// чтобы два процесса не работали с одной базой одновременно.
	lock := flock.New(fullPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить блокировку леджера: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("леджер %s уже используется другим процессом", fullPath)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", fullPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// SQLite не поддерживает concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, lock: lock, path: fullPath}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	if !resume {
		if _, err := db.Exec("DELETE FROM conversions"); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("не удалось очистить леджер: %w", err)
		}
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Store) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД и снимает блокировку.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// Path возвращает полный путь к файлу базы данных.
func (s *Store) Path() string {
	return s.path
}

// AppendRows выполняет массовую загрузку строк идентификации.
// Строки, чей ключ (source_file_path, source_directory) уже существует,
// остаются нетронутыми - повторная загрузка после частичного запуска безопасна.
func (s *Store) AppendRows(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO conversions
			(source_file_path, source_directory, file_size, mime_type, format_id, version)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("не удалось подготовить запрос: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.SourceFilePath, row.SourceDirectory,
			row.FileSize, row.MimeType, row.FormatID, row.Version,
		); err != nil {
			return fmt.Errorf("не удалось вставить строку %s: %w", row.SourceFilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("не удалось зафиксировать транзакцию: %w", err)
	}
	return nil
}

// UnconvertedRows возвращает строки указанной исходной директории без результата.
func (s *Store) UnconvertedRows(sourceDir string) ([]Row, error) {
	return s.queryRows(
		"WHERE source_directory = ? AND result IS NULL", sourceDir)
}

// ConvertedRows возвращает строки указанной исходной директории с результатом
// (для отчёта "уже конвертировано" при возобновлении).
func (s *Store) ConvertedRows(sourceDir string) ([]Row, error) {
	return s.queryRows(
		"WHERE source_directory = ? AND result IS NOT NULL", sourceDir)
}

// CountConverted возвращает количество уже обработанных строк.
func (s *Store) CountConverted(sourceDir string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM conversions WHERE source_directory = ? AND result IS NOT NULL",
		sourceDir,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("не удалось посчитать обработанные строки: %w", err)
	}
	return count, nil
}

// queryRows выполняет SELECT с указанным условием.
func (s *Store) queryRows(where string, args ...interface{}) ([]Row, error) {
	query := `
		SELECT source_file_path, source_directory, file_size, mime_type,
		       format_id, version, norm_file_path, result
		FROM conversions ` + where + ` ORDER BY id`

	dbRows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить запрос: %w", err)
	}
	defer func() { _ = dbRows.Close() }()

	var rows []Row
	for dbRows.Next() {
		var row Row
		var normPath, result sql.NullString
		if err := dbRows.Scan(
			&row.SourceFilePath, &row.SourceDirectory, &row.FileSize,
			&row.MimeType, &row.FormatID, &row.Version, &normPath, &result,
		); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку: %w", err)
		}
		if normPath.Valid {
			row.NormFilePath = &normPath.String
		}
		if result.Valid {
			r := Result(result.String)
			row.Result = &r
		}
		rows = append(rows, row)
	}

	return rows, dbRows.Err()
}

// UpdateRow выполняет полную замену строки по её ключу.
// Обновление атомарно относительно читателей той же строки.
func (s *Store) UpdateRow(row Row) error {
	var normPath, result interface{}
	if row.NormFilePath != nil {
		normPath = *row.NormFilePath
	}
	if row.Result != nil {
		result = string(*row.Result)
	}

	res, err := s.db.Exec(`
		UPDATE conversions
		SET file_size = ?, mime_type = ?, format_id = ?, version = ?,
		    norm_file_path = ?, result = ?
		WHERE source_file_path = ? AND source_directory = ?`,
		row.FileSize, row.MimeType, row.FormatID, row.Version,
		normPath, result,
		row.SourceFilePath, row.SourceDirectory,
	)
	if err != nil {
		return fmt.Errorf("не удалось обновить строку %s: %w", row.SourceFilePath, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%s: %w", row.SourceFilePath, ErrNotFound)
	}
	return nil
}

// DeleteRow удаляет строку из леджера.
// Используется для зарезервированных имён файлов (Thumbs.db), которые
// удаляются с диска и не должны получать терминальный результат.
func (s *Store) DeleteRow(sourceFilePath, sourceDir string) error {
	_, err := s.db.Exec(
		"DELETE FROM conversions WHERE source_file_path = ? AND source_directory = ?",
		sourceFilePath, sourceDir,
	)
	if err != nil {
		return fmt.Errorf("не удалось удалить строку %s: %w", sourceFilePath, err)
	}
	return nil
}

// GetStats возвращает статистику по строкам леджера.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByResult: make(map[Result]int64)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM conversions").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM conversions WHERE result IS NULL",
	).Scan(&stats.Unconverted); err != nil {
		return nil, fmt.Errorf("не удалось получить статистику: %w", err)
	}

	dbRows, err := s.db.Query(
		"SELECT result, COUNT(*) FROM conversions WHERE result IS NOT NULL GROUP BY result")
	if err != nil {
		return nil, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	defer func() { _ = dbRows.Close() }()

	for dbRows.Next() {
		var result string
		var count int64
		if err := dbRows.Scan(&result, &count); err != nil {
			return nil, fmt.Errorf("не удалось прочитать статистику: %w", err)
		}
		stats.ByResult[Result(result)] = count
	}

	return stats, dbRows.Err()
}

/*
Возможные расширения:
- Добавить метод для экспорта леджера в JSON/CSV
- Добавить метод для сброса failed строк (повторная попытка)
- Добавить поддержку нескольких исходных директорий в stats
*/
