// Package workflow выполняет деревья действий workflow по событиям сущностей.
//
// Порядок выполнения:
//
//	событие (create/update/delete/manual)
//	  → активные workflow для (obj_type, event)
//	  → предусловия, singleton, экземпляр
//	  → корневые действия
//	  → дочерние действия успешно выполненных
//
// Тип действия выбирает ActionExecutor через Factory. Ошибка или паника
// действия останавливает только его ветку: соседние ветки и другие
// workflow продолжают выполняться.
//
// Структура:
//   - service.go   — Service: RunWorkflowsOnEvent, ExecuteAction, RunChildActions, SaveWorkflow
//   - factory.go   — реестр типов действий
//   - actions.go   — встроенные действия (update_field, check_condition, wait_condition, assign, send_email)
//   - condition.go — проверка условий над полями сущности
package workflow
