package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

func TestPageRequestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		in       domain.PageRequest
		wantSize int
		wantErr  bool
	}{
		{name: "defaults", in: domain.PageRequest{}, wantSize: domain.DefaultPageSize},
		{name: "explicit", in: domain.PageRequest{Page: 2, PageSize: 5}, wantSize: 5},
		{name: "capped", in: domain.PageRequest{PageSize: 1000}, wantSize: domain.MaxPageSize},
		{name: "negative page", in: domain.PageRequest{Page: -1}, wantErr: true},
		{name: "negative size", in: domain.PageRequest{PageSize: -3}, wantErr: true},
		{name: "last addressable page", in: domain.PageRequest{Page: math.MaxInt64 / 100, PageSize: 100}, wantSize: 100},
		{name: "offset overflow", in: domain.PageRequest{Page: math.MaxInt64/100 + 1, PageSize: 100}, wantErr: true},
		{name: "offset overflow with default size", in: domain.PageRequest{Page: math.MaxInt64/domain.DefaultPageSize + 1}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.in.Normalize()
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidPageRequest) {
					t.Fatalf("expected ErrInvalidPageRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.PageSize != tc.wantSize {
				t.Fatalf("expected page size %d, got %d", tc.wantSize, got.PageSize)
			}
			if got.Page != tc.in.Page {
				t.Fatalf("expected page %d, got %d", tc.in.Page, got.Page)
			}
		})
	}
}

func TestPageRequestOffset(t *testing.T) {
	req := domain.PageRequest{Page: 3, PageSize: 20}
	if got := req.Offset(); got != 60 {
		t.Fatalf("expected offset 60, got %d", got)
	}
}

func TestNewPage(t *testing.T) {
	page := domain.NewPage([]int{1, 2}, domain.PageRequest{Page: 0, PageSize: 2}, 5)
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", page.TotalPages)
	}
	if page.TotalElements != 5 {
		t.Fatalf("expected 5 elements, got %d", page.TotalElements)
	}

	empty := domain.NewPage[int](nil, domain.PageRequest{PageSize: 10}, 0)
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Fatalf("expected non-nil empty items, got %#v", empty.Items)
	}
	if empty.TotalPages != 0 {
		t.Fatalf("expected 0 pages, got %d", empty.TotalPages)
	}
}

func TestMapPage(t *testing.T) {
	src := domain.NewPage([]int{1, 2, 3}, domain.PageRequest{Page: 1, PageSize: 3}, 6)
	dst := domain.MapPage(src, func(v int) string { return string(rune('a' + v - 1)) })

	if len(dst.Items) != 3 || dst.Items[2] != "c" {
		t.Fatalf("unexpected mapped items: %v", dst.Items)
	}
	if dst.Page != 1 || dst.PageSize != 3 || dst.TotalElements != 6 || dst.TotalPages != 2 {
		t.Fatalf("metadata not preserved: %+v", dst)
	}
}
