// Package cli реализует инструмент командной строки сервиса перевода.
//
// CLI — клиентская утилита поверх HTTP API: она не импортирует пакеты
// сервиса и общается с ним только по сети.
//
// Команды организованы по ресурсам:
//   - task: list, show, submit, cancel, restart
//   - pool: status
//   - health
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
