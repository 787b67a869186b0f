package domain

import (
	"fmt"
	"math"
)

const (
	// DefaultPageSize используется, если размер страницы не передан.
	DefaultPageSize = 10
	// MaxPageSize ограничивает размер страницы сверху.
	MaxPageSize = 100
)

// PageRequest описывает запрашиваемую страницу. Нумерация страниц начинается с нуля.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize подставляет размер по умолчанию, ограничивает максимум и проверяет границы.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page < 0 {
		return PageRequest{}, fmt.Errorf("%w: page must be >= 0, got %d", ErrInvalidPageRequest, p.Page)
	}
	if p.PageSize < 0 {
		return PageRequest{}, fmt.Errorf("%w: page size must be > 0, got %d", ErrInvalidPageRequest, p.PageSize)
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	// смещение page*pageSize должно помещаться в int64
	if int64(p.Page) > math.MaxInt64/int64(p.PageSize) {
		return PageRequest{}, fmt.Errorf("%w: page %d is out of range", ErrInvalidPageRequest, p.Page)
	}
	return p, nil
}

// Offset возвращает количество записей, которые нужно пропустить.
func (p PageRequest) Offset() int64 {
	return int64(p.Page) * int64(p.PageSize)
}

// Page — страница результатов вместе с метаданными пагинации.
type Page[T any] struct {
	Items         []T
	Page          int
	PageSize      int
	TotalElements int64
	TotalPages    int
}

// NewPage собирает страницу и вычисляет количество страниц.
func NewPage[T any](items []T, req PageRequest, totalElements int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = int((totalElements + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	return Page[T]{
		Items:         items,
		Page:          req.Page,
		PageSize:      req.PageSize,
		TotalElements: totalElements,
		TotalPages:    totalPages,
	}
}

// MapPage преобразует элементы страницы, сохраняя метаданные.
func MapPage[T, R any](src Page[T], fn func(T) R) Page[R] {
	items := make([]R, 0, len(src.Items))
	for _, item := range src.Items {
		items = append(items, fn(item))
	}
	return Page[R]{
		Items:         items,
		Page:          src.Page,
		PageSize:      src.PageSize,
		TotalElements: src.TotalElements,
		TotalPages:    src.TotalPages,
	}
}
