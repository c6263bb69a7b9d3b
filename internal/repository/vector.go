package repository

import (
	"strconv"
	"strings"
)

// vectorLiteral кодирует вектор в текстовый литерал pgvector ("[0.1,0.2]").
// Пустой вектор даёт NULL.
func vectorLiteral(v []float32) *string {
	if len(v) == 0 {
		return nil
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	s := b.String()
	return &s
}
