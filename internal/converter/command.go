// Package converter содержит реестр конвертеров и запуск внешних команд конвертации.
package converter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Токены шаблона команды. Все токены опциональны; при подстановке значение
// оборачивается в двойные кавычки, поэтому пути не должны содержать символ
// кавычки (документированное ограничение, не проверяется).
const (
	// TokenSource - путь к исходному файлу.
	TokenSource = "<source>"

	// TokenTarget - путь к целевому файлу.
	TokenTarget = "<target>"

	// TokenMimeType - mime-тип исходного файла.
	TokenMimeType = "<mime-type>"

	// TokenTargetExt - целевое расширение без точки.
	TokenTargetExt = "<target-ext>"
)

// Substitute подставляет значения в шаблон команды.
// Подстановка чисто текстовая: каждое значение оборачивается в двойные
// кавычки, никакого дополнительного shell-экранирования не выполняется.
func Substitute(template, source, target, mimeType, targetExt string) string {
	replacer := strings.NewReplacer(
		TokenSource, `"`+source+`"`,
		TokenTarget, `"`+target+`"`,
		TokenMimeType, `"`+mimeType+`"`,
		TokenTargetExt, `"`+targetExt+`"`,
	)
	return replacer.Replace(template)
}

// RunResult содержит результат запуска команды конвертации.
type RunResult struct {
	// TimedOut - команда была прервана по таймауту.
	TimedOut bool

	// Err - ошибка запуска (ненулевой код выхода, отсутствие shell и т.д.).
	Err error

	// Stderr - вывод stderr команды.
	Stderr string

	// Duration - время выполнения.
	Duration time.Duration
}

// Runner запускает команды конвертации через shell.
// Команды выполняются синхронно в рабочей директории процесса.
type Runner struct {
	// timeout - таймаут на одну команду.
	timeout time.Duration
}

// NewRunner создаёт новый Runner.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{timeout: timeout}
}

// Timeout возвращает текущий таймаут.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run выполняет команду через "sh -c" с таймаутом.
// Код выхода и таймаут не являются сами по себе признаком неудачи:
// вызывающая сторона судит об успехе по существованию целевого файла.
func (r *Runner) Run(ctx context.Context, command string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &RunResult{
		Err:      err,
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
	}

	return result
}

/*
Возможные расширения:
- Добавить ограничение на размер захватываемого stderr
- Добавить передачу переменных окружения конвертерам
*/
