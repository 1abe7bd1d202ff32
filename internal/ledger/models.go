// Package ledger содержит модели и логику работы с SQLite базой данных конвертации.
package ledger

// Result определяет итоговый статус конвертации файла.
type Result string

const (
	// ResultSuccessful - файл успешно конвертирован.
	ResultSuccessful Result = "successful"
	// ResultFailed - конвертация завершилась с ошибкой.
	ResultFailed Result = "failed"
	// ResultManual - файл требует ручной конвертации оператором.
	ResultManual Result = "manual"
	// ResultNotSupported - для формата файла нет зарегистрированного конвертера.
	ResultNotSupported Result = "not_supported"
	// ResultNotADocument - файл не является документом (нет содержимого для конвертации).
	ResultNotADocument Result = "not_a_document"
)

// Terminal возвращает true, если результат является терминальным.
// Строка с терминальным результатом никогда не обрабатывается повторно.
func (r Result) Terminal() bool {
	switch r {
	case ResultSuccessful, ResultFailed, ResultManual, ResultNotSupported, ResultNotADocument:
		return true
	}
	return false
}

// Converted возвращает true, если результат считается конвертацией
// (учитывается в итоговом сообщении запуска).
func (r Result) Converted() bool {
	return r == ResultSuccessful || r == ResultManual
}

// Row представляет одну строку леджера: идентификация + состояние конвертации файла.
type Row struct {
	// SourceFilePath - путь к исходному файлу относительно исходной директории.
	// Уникален в пределах одной исходной директории.
	SourceFilePath string `db:"source_file_path"`

	// SourceDirectory - абсолютный путь к исходной директории.
	SourceDirectory string `db:"source_directory"`

	// FileSize - размер исходного файла в байтах.
	FileSize int64 `db:"file_size"`

	// MimeType - mime-тип, определённый идентификатором.
	MimeType string `db:"mime_type"`

	// FormatID - идентификатор формата (PRONOM PUID, например "fmt/19").
	FormatID string `db:"format_id"`

	// Version - версия формата (если известна).
	Version string `db:"version"`

	// NormFilePath - путь к конвертированному файлу относительно целевой
	// директории. nil, пока конвертация не завершилась успешно.
	NormFilePath *string `db:"norm_file_path"`

	// Result - итоговый статус. nil означает "ещё не конвертирован".
	Result *Result `db:"result"`
}

// Unconverted возвращает true, если строка ещё не обработана.
func (r *Row) Unconverted() bool {
	return r.Result == nil
}

// Stats содержит количество строк по каждому статусу (для команды stats).
type Stats struct {
	// Total - всего строк в леджере.
	Total int64

	// Unconverted - строк без результата.
	Unconverted int64

	// ByResult - количество строк по каждому терминальному статусу.
	ByResult map[Result]int64
}

/*
Возможные расширения:
- Добавить поле с длительностью конвертации (для статистики)
- Добавить поле с текстом ошибки конвертера
- Добавить время начала/завершения обработки строки
*/
