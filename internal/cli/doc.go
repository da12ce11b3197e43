// Package cli реализует инструмент командной строки Workman.
//
// # Обзор
//
// CLI — клиентская утилита для Workman API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Workman API. Разбирает конверты DataResponse,
// ListResponse и ErrorResponse. Ошибка сервера возвращается как *APIError
// с HTTP-статусом и кодом.
//
//	client := cli.NewClient("http://localhost:8080")
//	names, err := client.ListWorkers()
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
//
//	workman schedule due --json | jq '.[].id'
//
// ## Commands
//
// Cobra-команды по ресурсам:
//   - worker: list, run, enqueue, purge
//   - schedule: at, every, cron, show, due, done
//   - event: notify
//   - workflow: save
//
// Каждая группа создаётся фабричной функцией (NewWorkerCmd и т.д.),
// принимающей clientFn и outputFn: Client и Output создаются после
// парсинга PersistentFlags.
package cli
