// Package api реализует HTTP API сервиса перевода SVG.
//
// Структура:
//   - handler.go        — Handler с зависимостями
//   - routes.go         — маршруты
//   - response.go       — хелперы JSON-ответов и коды ошибок
//   - middleware.go     — logging и recovery
//   - dto.go            — request/response структуры
//   - task_handler.go   — операции над задачами
//   - pool_handler.go   — статус пулов соединений
//   - health_handler.go — health check
package api
