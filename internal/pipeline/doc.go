// Package pipeline реализует конвейер перевода SVG-файла.
//
// Конвейер — линейная машина из восьми стадий (initialize → text →
// titles → translations → download → nested → inject → upload).
// Стадии выполняются строго по порядку; провал стадии помечает
// оставшиеся как Skipped, отмена проверяется только на границах
// стадий.
//
// Структура:
//   - executor.go — интерфейс StageExecutor и реестр стадий
//   - runner.go   — выполнение конвейера одной задачи
//   - launcher.go — запуск задач в фоне, отмена, перезапуск
//   - cancel.go   — реестр запросов отмены
package pipeline
