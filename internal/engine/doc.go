// Package engine содержит структурный анализ workflow.
//
// Включает:
//   - forest.go   — построение леса действий (parent → children) и обход
//   - validate.go — валидация набора действий перед сохранением
//   - merge.go    — подстановка полей сущности (<%field%>) в параметры действий
//
// Engine не выполняет действия: он отвечает за понимание структуры
// дерева и проверку того, что дерево корректно.
package engine
