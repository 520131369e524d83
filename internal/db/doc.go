// Package db реализует доступ к базе данных под жёстким внешним лимитом
// соединений (max_user_connections на стороне сервера).
//
// # Обзор
//
// Пакет состоит из двух уровней:
//
//   - Pool — ограниченный пул физических соединений. Два независимых
//     пула (interactive и background) существуют для того, чтобы всплеск
//     фоновой batch-работы не мог отобрать соединения у HTTP-обработчиков:
//     бюджеты разделены конструктивно, а не приоритетами в рантайме.
//   - Executor — выполняет один SQL-statement на одолженном соединении
//     с retry по классификации ошибки.
//
// # Размерность пулов
//
// Суммарная ёмкость подбирается под внешний потолок:
//
//	interactive_cap × процессы + background_cap × процессы ≤ потолок × 0.85
//
// Запас оставляется под административные соединения.
//
// # Классификация ошибок
//
//   - Исчерпание лимита сервера (SQLSTATE 53300) — длинный backoff
//     (база 1s, экспоненциально, с джиттером); после исчерпания попыток
//     наружу уходит ErrConnectionBudget, чтобы UI мог показать
//     "система занята, повторите позже" вместо общей ошибки.
//   - Transient-ошибки соединения (class 08, 57P0x, сетевые) — короткий
//     backoff (база 200ms); после исчерпания попыток исходная ошибка
//     возвращается как есть.
//   - Всё остальное — без retry, rollback и немедленный возврат.
//
// Соединение возвращается в пул на каждом пути выхода.
package db
