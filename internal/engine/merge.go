package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/Workman/internal/domain"
)

// MergeContext — данные для подстановки в параметры действий.
//
// Поддерживаемые переменные:
//   - <%field_name%> — значение поля сущности
//   - <%id%>         — ID сущности
//   - <%obj_type%>   — тип сущности
//   - <%entity_link%> — ссылка на сущность в приложении
type MergeContext struct {
	// Entity — сущность, над которой выполняется действие.
	Entity *domain.Entity

	// AppURL — базовый адрес приложения для <%entity_link%>.
	AppURL string
}

// mergeVar находит переменные вида <%name%>.
var mergeVar = regexp.MustCompile(`<%\s*([A-Za-z0-9_.]+)\s*%>`)

// EntityLink строит ссылку на сущность.
func (c *MergeContext) EntityLink() string {
	if c.Entity == nil {
		return ""
	}
	return fmt.Sprintf("%s/browse/%s/%s", strings.TrimRight(c.AppURL, "/"), c.Entity.ObjType, c.Entity.ID)
}

// lookup возвращает значение переменной.
func (c *MergeContext) lookup(name string) any {
	switch name {
	case "entity_link":
		return c.EntityLink()
	case "obj_type":
		if c.Entity == nil {
			return ""
		}
		return c.Entity.ObjType
	}
	if c.Entity == nil {
		return nil
	}
	return c.Entity.GetValue(name)
}

// Merge подставляет переменные в строку.
//
// Подстановка выполняется за один проход: значения полей, содержащие
// <%...%>, повторно не раскрываются. Неизвестные поля заменяются на "".
func Merge(tmpl string, ctx *MergeContext) string {
	if ctx == nil || !strings.Contains(tmpl, "<%") {
		return tmpl
	}

	return mergeVar.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := mergeVar.FindStringSubmatch(m)[1]
		return FormatValue(ctx.lookup(name))
	})
}

// MergeValue подставляет переменные в произвольное значение.
// Рекурсивно обрабатывает map и slice.
func MergeValue(value any, ctx *MergeContext) any {
	switch v := value.(type) {
	case string:
		return Merge(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = MergeValue(val, ctx)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = MergeValue(val, ctx)
		}
		return result

	default:
		return value
	}
}

// FormatValue приводит значение поля к строке для подстановки.
// Списки объединяются через запятую.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
