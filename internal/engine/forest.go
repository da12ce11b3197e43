package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Workman/internal/domain"
)

// Node — узел леса действий.
type Node struct {
	// Action — действие workflow.
	Action *domain.WorkflowAction

	// ID — идентификатор действия.
	ID uuid.UUID

	// Parent — родительский узел. nil для корней.
	Parent *Node

	// Children — дочерние узлы в порядке исходного списка.
	Children []*Node

	// Depth — глубина узла, у корней 0.
	Depth int
}

// Forest — лес действий одного workflow.
//
// Каждое действие имеет не более одного родителя, циклов нет.
// Потомок всегда идёт в Order после родителя.
type Forest struct {
	// Nodes — все узлы (actionID → Node).
	Nodes map[uuid.UUID]*Node

	// Roots — действия без родителя в порядке исходного списка.
	Roots []*Node

	// Order — узлы в порядке обхода в ширину от корней.
	Order []*Node
}

// BuildForest строит лес из плоского списка действий.
//
// Возвращает ValidationError, если ID пустой или повторяется,
// родитель не найден или ссылки на родителей образуют цикл.
func BuildForest(actions []domain.WorkflowAction) (*Forest, error) {
	f := &Forest{
		Nodes: make(map[uuid.UUID]*Node, len(actions)),
	}

	// Первый проход: создаём узлы
	nodes := make([]*Node, 0, len(actions))
	for i := range actions {
		action := &actions[i]

		if action.ID == uuid.Nil {
			return nil, NewValidationError(uuid.Nil, "id",
				fmt.Sprintf("action #%d has empty ID", i), ErrEmptyActionID)
		}
		if _, exists := f.Nodes[action.ID]; exists {
			return nil, NewValidationError(action.ID, "id",
				"duplicate action ID", ErrDuplicateActionID)
		}

		node := &Node{Action: action, ID: action.ID}
		f.Nodes[action.ID] = node
		nodes = append(nodes, node)
	}

	// Второй проход: связываем родителей и детей
	for _, node := range nodes {
		parentID := node.Action.ParentActionID
		if parentID == nil {
			f.Roots = append(f.Roots, node)
			continue
		}
		if *parentID == node.ID {
			return nil, NewValidationError(node.ID, "parent_action_id",
				"action references itself as parent", ErrSelfParent)
		}
		parent, exists := f.Nodes[*parentID]
		if !exists {
			return nil, NewValidationError(node.ID, "parent_action_id",
				fmt.Sprintf("parent not found: %s", parentID), ErrMissingParent)
		}
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	order, err := f.traverse()
	if err != nil {
		return nil, err
	}
	f.Order = order

	return f, nil
}

// traverse обходит лес в ширину от корней.
// Узлы, недостижимые от корней, лежат на цикле.
func (f *Forest) traverse() ([]*Node, error) {
	queue := make([]*Node, len(f.Roots))
	copy(queue, f.Roots)

	order := make([]*Node, 0, len(f.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, child := range node.Children {
			child.Depth = node.Depth + 1
			queue = append(queue, child)
		}
	}

	if len(order) != len(f.Nodes) {
		reached := make(map[uuid.UUID]bool, len(order))
		for _, n := range order {
			reached[n.ID] = true
		}
		cycle := make([]string, 0)
		for id := range f.Nodes {
			if !reached[id] {
				cycle = append(cycle, id.String())
			}
		}
		sort.Strings(cycle)
		return nil, NewValidationError(uuid.MustParse(cycle[0]), "parent_action_id",
			fmt.Sprintf("actions form a cycle: %v", cycle), ErrCyclicDependency)
	}

	return order, nil
}

// GetNode возвращает узел по ID.
func (f *Forest) GetNode(id uuid.UUID) *Node {
	return f.Nodes[id]
}

// Size возвращает количество действий.
func (f *Forest) Size() int {
	return len(f.Nodes)
}

// ChildrenOf возвращает дочерние действия.
func (f *Forest) ChildrenOf(id uuid.UUID) []*domain.WorkflowAction {
	node, ok := f.Nodes[id]
	if !ok {
		return nil
	}
	children := make([]*domain.WorkflowAction, 0, len(node.Children))
	for _, c := range node.Children {
		children = append(children, c.Action)
	}
	return children
}

// RootActions возвращает корневые действия.
func (f *Forest) RootActions() []*domain.WorkflowAction {
	roots := make([]*domain.WorkflowAction, 0, len(f.Roots))
	for _, r := range f.Roots {
		roots = append(roots, r.Action)
	}
	return roots
}
