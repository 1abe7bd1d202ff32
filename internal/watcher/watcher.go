// Package watcher предоставляет функциональность слежения за директорией.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/avkuznecov/docnormalizer/internal/config"
)

// Watcher следит за исходной директорией и сигнализирует о необходимости
// повторного запуска конвейера.
//
// Конвейер работает с директорией целиком (сверка идентификации требует
// полного списка файлов), поэтому наружу отдаются не отдельные файлы,
// а один сигнал после периода затишья.
type Watcher struct {
	// cfg - конфигурация.
	cfg *config.Config

	// watcher - fsnotify watcher.
	watcher *fsnotify.Watcher

	// settleTime - время затишья перед сигналом.
	// Нужно, чтобы пачка файлов успела полностью записаться.
	settleTime time.Duration

	// lastEvent - время последнего релевантного события.
	lastEvent time.Time

	// dirty - true, если после последнего сигнала были события.
	dirty bool
	mu    sync.Mutex
}

// New создаёт новый Watcher.
func New(cfg *config.Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	return &Watcher{
		cfg:        cfg,
		watcher:    w,
		settleTime: 2 * time.Second,
	}, nil
}

// SetSettleTime устанавливает время затишья.
func (w *Watcher) SetSettleTime(d time.Duration) {
	w.settleTime = d
}

// Watch запускает слежение и возвращает канал сигналов повторного запуска.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := w.addRecursive(w.cfg.SourceDir); err != nil {
		return nil, err
	}

	triggers := make(chan struct{}, 1)

	// Горутина для обработки событий
	go w.processEvents(ctx)

	// Горутина для затишья
	go w.processSettle(ctx, triggers)

	return triggers, nil
}

// addRecursive добавляет директорию и все поддиректории в watcher.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if ignoredDir(info.Name()) && path != dir {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
		}
		return nil
	})
}

// processEvents обрабатывает события от fsnotify.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Интересны только создание и запись
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ignoredPath(event.Name) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}

			if info.IsDir() {
				// Новая директория - добавляем в watcher
				if event.Op&fsnotify.Create != 0 {
					_ = w.addRecursive(event.Name)
				}
				continue
			}

			w.mu.Lock()
			w.lastEvent = time.Now()
			w.dirty = true
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Ошибка watcher: %v\n", err)
		}
	}
}

// processSettle отправляет сигнал, когда после последнего события
// прошло settleTime.
func (w *Watcher) processSettle(ctx context.Context, triggers chan<- struct{}) {
	defer close(triggers)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.settled() {
				continue
			}
			select {
			case triggers <- struct{}{}:
			default:
				// Сигнал уже ожидает обработки
			}
		}
	}
}

// settled проверяет затишье и сбрасывает флаг изменений.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirty || time.Since(w.lastEvent) < w.settleTime {
		return false
	}
	w.dirty = false
	return true
}

// ignoredDir возвращает true для служебных и скрытых директорий.
func ignoredDir(name string) bool {
	return name == config.StateDirName || strings.HasPrefix(name, ".")
}

// ignoredPath возвращает true, если путь лежит в служебной или
// скрытой директории.
func ignoredPath(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "." && part != ".." && ignoredDir(part) {
			return true
		}
	}
	return false
}

// Close закрывает watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

/*
Возможные расширения:
- Добавить обработку удаления файлов
- Добавить настраиваемый интервал опроса
*/
