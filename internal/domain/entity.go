package domain

// Entity — бизнес-объект (клиент, задача, тикет), которым владеет внешнее хранилище.
// Ядро читает и пишет его только через интерфейс хранилища сущностей.
type Entity struct {
	// ID — идентификатор. Пустая строка означает несохранённую сущность.
	ID string `json:"id"`

	// ObjType — тип сущности, например "task".
	ObjType string `json:"obj_type"`

	// Fields — значения полей.
	Fields map[string]any `json:"fields"`
}

// NewEntity создаёт пустую сущность заданного типа.
func NewEntity(objType string) *Entity {
	return &Entity{ObjType: objType, Fields: make(map[string]any)}
}

// IsSaved возвращает true, если сущность сохранена.
func (e *Entity) IsSaved() bool {
	return e.ID != ""
}

// GetValue возвращает значение поля. Поле "id" отдаёт идентификатор.
func (e *Entity) GetValue(field string) any {
	if field == "id" {
		return e.ID
	}
	if e.Fields == nil {
		return nil
	}
	return e.Fields[field]
}

// SetValue устанавливает значение поля.
func (e *Entity) SetValue(field string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[field] = value
}

// User — пользователь, от имени которого выполняются действия.
type User struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// SystemUser — пользователь для действий, запущенных без пользователя.
var SystemUser = &User{ID: "system", Name: "System"}
