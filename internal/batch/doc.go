// Package batch реализует параллельную обработку наборов элементов
// поверх фонового пула соединений.
//
// Ключевое правило: соединение заимствуется на один элемент (или один
// чанк), а не на весь батч. Число воркеров ограничено базовой ёмкостью
// пула, чтобы батч не выедал overflow-резерв у остальных потребителей.
package batch
