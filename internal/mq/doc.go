// Package mq — инфраструктура для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий задач
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - task.submitted — принята новая задача перевода
//   - task.cancelled — запрошена отмена задачи
//
// Exchanges:
//   - svgtranslate.tasks  — события задач (direct)
//   - svgtranslate.cancel — broadcast отмены на все процессы (fanout)
//
// Шина опциональна: без RabbitMQ приложение работает в одиночном
// режиме, отмена доходит до исполнителя через статус в БД.
package mq
