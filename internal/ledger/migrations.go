// Package ledger содержит миграции SQLite базы данных.
package ledger

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Создание таблицы conversions
	`CREATE TABLE IF NOT EXISTS conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_file_path TEXT NOT NULL,
		source_directory TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT NOT NULL DEFAULT '',
		format_id TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		norm_file_path TEXT,
		result TEXT
	);`,

	// Миграция 2: Уникальный индекс для идемпотентной загрузки.
	// Повторная загрузка результатов идентификации не создаёт дубликатов
	// для уже известных путей.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversions_src
	ON conversions (source_file_path, source_directory);`,

	// Миграция 3: Индекс для выборки неконвертированных строк
	`CREATE INDEX IF NOT EXISTS ix_conversions_result
	ON conversions (source_directory, result);`,

	// Миграция 4: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 5: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}

/*
Возможные расширения:
- Добавить таблицу для истории запусков (время, количество файлов)
- Добавить поддержку отката миграций (down migrations)
*/
