// Package stages содержит исполнителей стадий конвейера перевода SVG.
//
// Каждая стадия — отдельный файл с типом, реализующим
// pipeline.StageExecutor. Стадии общаются через pipeline.State
// и получают внешние зависимости (вики-клиент, batch-обработчик,
// хранилище) через Deps.
package stages
