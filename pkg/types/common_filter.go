package types

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

var ErrInvalidFilter = errors.New("invalid filter")

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Normalize checks the field against allowed columns and converts
// date_range bounds (RFC3339 strings) to time.Time.
func (f *CommonFilter) Normalize(allowed map[string]bool) error {
	if !allowed[f.Field] {
		return fmt.Errorf("%w: filter on unknown field %q", ErrInvalidFilter, f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("%w: range filter on %s needs 2 values", ErrInvalidFilter, f.Field)
		}
	case CommonFilterOperatorDateRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("%w: date_range filter on %s needs 2 values", ErrInvalidFilter, f.Field)
		}
		for i, v := range f.Values {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: date_range filter on %s: value %d is not a string", ErrInvalidFilter, f.Field, i)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("%w: date_range filter on %s: %w", ErrInvalidFilter, f.Field, err)
			}
			f.Values[i] = t.UTC()
		}
	case CommonFilterOperatorEq, CommonFilterOperatorNotEq, CommonFilterOperatorLt, CommonFilterOperatorLte,
		CommonFilterOperatorGt, CommonFilterOperatorGte, CommonFilterOperatorIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("%w: filter on %s has no values", ErrInvalidFilter, f.Field)
		}
	default:
		return fmt.Errorf("%w: unsupported filter operator %q", ErrInvalidFilter, f.Operator)
	}
	return nil
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	default:
		return
	}
}

// FiltersAnd combines filters into a single clause.Expression.
type FiltersAnd []*CommonFilter

func (w FiltersAnd) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w))
	for _, f := range w {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanRequest is a paginated, filtered listing used by admin pages.
type ScanRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

const (
	defaultScanSize = 10
	maxScanSize     = 500
)

// Normalize clamps paging and validates filters and sort column.
func (r *ScanRequest) Normalize(allowed map[string]bool) error {
	if r.Size <= 0 {
		r.Size = defaultScanSize
	}
	if r.Size > maxScanSize {
		r.Size = maxScanSize
	}
	if r.From < 0 {
		r.From = 0
	}
	if r.SortBy != "" && !allowed[r.SortBy] {
		return fmt.Errorf("%w: sort on unknown field %q", ErrInvalidFilter, r.SortBy)
	}
	for _, f := range r.Filters {
		if f == nil {
			return fmt.Errorf("%w: nil filter", ErrInvalidFilter)
		}
		if err := f.Normalize(allowed); err != nil {
			return err
		}
	}
	return nil
}
