package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload — payload не удалось сериализовать или разобрать.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload — данные задания: отображение строки в JSON-совместимое значение.
//
// Допустимые значения: nil, bool, string, числа (float64, int*, json.Number),
// []any, map[string]any и вложенные комбинации. Несериализуемые значения
// (каналы, функции) отклоняются при Encode.
type Payload map[string]any

// Encode сериализует payload в JSON.
// Пустой (nil) payload кодируется как "{}".
func (p Payload) Encode() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

// DecodePayload разбирает JSON-объект в Payload.
//
// Числа декодируются как json.Number, поэтому большие целые и дроби
// проходят цикл encode → decode без потери точности.
func DecodePayload(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Payload{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// Clone возвращает глубокую копию payload через JSON.
func (p Payload) Clone() (Payload, error) {
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return DecodePayload(data)
}

// String возвращает строковое значение ключа или "".
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int возвращает целое значение ключа или defaultVal.
func (p Payload) Int(key string, defaultVal int) int {
	switch v := p[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return defaultVal
}
