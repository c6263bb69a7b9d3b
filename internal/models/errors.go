package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - запрошенная сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPlan - план сцены нарушает ограничения политики или структуры.
	ErrInvalidPlan = errors.New("invalid scene plan")
	// ErrInvalidEnhancement - ответ усилителя не прошёл проверку.
	ErrInvalidEnhancement = errors.New("invalid enhancement output")
	// ErrInvalidPolicy - политика сцены нарушает собственные инварианты.
	ErrInvalidPolicy = errors.New("invalid scene policy")
	// ErrGenerationFailed - генерация шага сцены завершилась ошибкой.
	ErrGenerationFailed = errors.New("scene generation failed")
	// ErrEmptyQuery - пустой запрос пользователя.
	ErrEmptyQuery = errors.New("empty query")
	// ErrInvalidMemory - запись памяти не прошла проверку.
	ErrInvalidMemory = errors.New("invalid memory")
)

func invalidEnhancement(field, value string) error {
	return fmt.Errorf("%w: %s has unexpected value %q", ErrInvalidEnhancement, field, value)
}
