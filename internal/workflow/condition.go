package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/shaiso/Workman/internal/domain"
	"github.com/shaiso/Workman/internal/engine"
)

// Операторы условий.
const (
	OpIsEqual          = "is_equal"
	OpIsNotEqual       = "is_not_equal"
	OpIsGreater        = "is_greater"
	OpIsLess           = "is_less"
	OpIsGreaterOrEqual = "is_greater_or_equal"
	OpIsLessOrEqual    = "is_less_or_equal"
	OpBeginsWith       = "begins_with"
	OpContains         = "contains"
	OpIsEmpty          = "is_empty"
	OpIsNotEmpty       = "is_not_empty"
)

// Связки условий.
const (
	BlogicAnd = "and"
	BlogicOr  = "or"
)

// MatchConditions проверяет сущность на соответствие списку условий.
//
// Условия вычисляются слева направо, blogic каждого условия (кроме первого)
// задаёт связку с накопленным результатом. Пустой список — true.
func MatchConditions(conditions []domain.Condition, entity *domain.Entity) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	var result bool
	for i, cond := range conditions {
		matched, err := MatchCondition(cond, entity)
		if err != nil {
			return false, err
		}
		if i == 0 {
			result = matched
			continue
		}
		if strings.EqualFold(cond.Blogic, BlogicOr) {
			result = result || matched
		} else {
			result = result && matched
		}
	}
	return result, nil
}

// MatchCondition проверяет одно условие.
func MatchCondition(cond domain.Condition, entity *domain.Entity) (bool, error) {
	if cond.FieldName == "" {
		return false, fmt.Errorf("%w: condition without field_name", ErrInvalidArgument)
	}
	actual := entity.GetValue(cond.FieldName)

	// Поле-список совпадает, если совпадает хотя бы один элемент
	if items, ok := actual.([]any); ok {
		switch cond.Operator {
		case OpIsEmpty:
			return len(items) == 0, nil
		case OpIsNotEmpty:
			return len(items) > 0, nil
		case OpIsNotEqual:
			for _, item := range items {
				if equalValues(item, cond.Value) {
					return false, nil
				}
			}
			return true, nil
		}
		for _, item := range items {
			matched, err := MatchCondition(cond, &domain.Entity{Fields: map[string]any{cond.FieldName: item}})
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	}

	switch cond.Operator {
	case OpIsEqual:
		return equalValues(actual, cond.Value), nil
	case OpIsNotEqual:
		return !equalValues(actual, cond.Value), nil
	case OpIsGreater:
		return compareValues(actual, cond.Value) > 0, nil
	case OpIsLess:
		return compareValues(actual, cond.Value) < 0 && !isEmpty(actual), nil
	case OpIsGreaterOrEqual:
		return compareValues(actual, cond.Value) >= 0, nil
	case OpIsLessOrEqual:
		return compareValues(actual, cond.Value) <= 0 && !isEmpty(actual), nil
	case OpBeginsWith:
		return strings.HasPrefix(strings.ToLower(engine.FormatValue(actual)), strings.ToLower(engine.FormatValue(cond.Value))), nil
	case OpContains:
		return strings.Contains(strings.ToLower(engine.FormatValue(actual)), strings.ToLower(engine.FormatValue(cond.Value))), nil
	case OpIsEmpty:
		return isEmpty(actual), nil
	case OpIsNotEmpty:
		return !isEmpty(actual), nil
	}
	return false, fmt.Errorf("%w: unknown condition operator %q", ErrInvalidArgument, cond.Operator)
}

// equalValues сравнивает значения: числа численно, остальное как строки.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		return ab == toBool(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == toBool(a)
	}
	return engine.FormatValue(a) == engine.FormatValue(b)
}

// compareValues возвращает -1, 0 или 1.
// Если оба значения числовые, сравнивает численно, иначе как строки.
func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(engine.FormatValue(a), engine.FormatValue(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "t", "true", "1", "yes", "on":
			return true
		}
	case json.Number:
		return b.String() != "0"
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
