// Package kpi computes calculated KPIs and runs the data point pipeline:
// threshold alerts, alert resolution and recomputation of dependent KPIs.
package kpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/edvin/automation/internal/model"
)

// Formula operators.
const (
	OpRef   = "ref"
	OpConst = "const"
	OpSum   = "sum"
	OpAvg   = "avg"
	OpMin   = "min"
	OpMax   = "max"
	OpCount = "count"
	OpRatio = "ratio"
	OpAbs   = "abs"
)

var (
	ErrInvalidFormula = errors.New("invalid formula")
	ErrDivisionByZero = errors.New("division by zero")
	ErrNotCalculated  = errors.New("kpi has no calculation")
)

const maxFormulaDepth = 32

// Expr is a node of a KPI formula. Formulas are stored as JSON, e.g.
//
//	{"op":"ratio","args":[{"op":"ref","kpi_id":"a"},{"op":"sum","args":[...]}]}
type Expr struct {
	Op    string  `json:"op"`
	KPIID string  `json:"kpi_id,omitempty"`
	Value float64 `json:"value,omitempty"`
	Args  []Expr  `json:"args,omitempty"`
}

// ParseFormula decodes and checks a formula.
func ParseFormula(raw json.RawMessage) (*Expr, error) {
	var e Expr
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormula, err)
	}
	if err := e.check(0); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Expr) check(depth int) error {
	if depth > maxFormulaDepth {
		return fmt.Errorf("%w: nested deeper than %d", ErrInvalidFormula, maxFormulaDepth)
	}
	switch e.Op {
	case OpRef:
		if e.KPIID == "" {
			return fmt.Errorf("%w: ref without kpi_id", ErrInvalidFormula)
		}
		return nil
	case OpConst:
		return nil
	case OpSum, OpAvg, OpMin, OpMax, OpCount:
		if len(e.Args) == 0 {
			return fmt.Errorf("%w: %s needs at least one argument", ErrInvalidFormula, e.Op)
		}
	case OpRatio:
		if len(e.Args) != 2 {
			return fmt.Errorf("%w: ratio needs two arguments", ErrInvalidFormula)
		}
	case OpAbs:
		if len(e.Args) != 1 {
			return fmt.Errorf("%w: abs needs one argument", ErrInvalidFormula)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFormula, e.Op)
	}
	for i := range e.Args {
		if err := e.Args[i].check(depth + 1); err != nil {
			return err
		}
	}
	return nil
}

// Eval computes the formula. Referenced KPIs without a value count as 0.
func (e *Expr) Eval(values map[string]float64) (float64, error) {
	switch e.Op {
	case OpRef:
		return values[e.KPIID], nil
	case OpConst:
		return e.Value, nil
	case OpCount:
		return float64(len(e.Args)), nil
	}

	args := make([]float64, len(e.Args))
	for i := range e.Args {
		v, err := e.Args[i].Eval(values)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	switch e.Op {
	case OpSum:
		return sum(args), nil
	case OpAvg:
		return sum(args) / float64(len(args)), nil
	case OpMin:
		m := args[0]
		for _, v := range args[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	case OpMax:
		m := args[0]
		for _, v := range args[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	case OpRatio:
		if args[1] == 0 {
			return 0, ErrDivisionByZero
		}
		return args[0] / args[1], nil
	case OpAbs:
		return math.Abs(args[0]), nil
	}
	return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidFormula, e.Op)
}

// Refs lists the KPI ids the formula reads, without duplicates.
func (e *Expr) Refs() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(x *Expr)
	walk = func(x *Expr) {
		if x.Op == OpRef && !seen[x.KPIID] {
			seen[x.KPIID] = true
			out = append(out, x.KPIID)
		}
		for i := range x.Args {
			walk(&x.Args[i])
		}
	}
	walk(e)
	return out
}

// FormulaFor returns the formula of a calculated KPI. Custom KPIs carry
// their own formula; the standard methods aggregate the parents.
func FormulaFor(k *model.KPI) (*Expr, error) {
	if k.DataSourceType != model.KPISourceCalculated {
		return nil, ErrNotCalculated
	}
	if k.CalculationMethod == model.CalculationCustom {
		if len(k.Formula) == 0 {
			return nil, fmt.Errorf("%w: custom kpi without formula", ErrInvalidFormula)
		}
		return ParseFormula(k.Formula)
	}
	if len(k.ParentIDs) == 0 {
		return nil, ErrNotCalculated
	}

	refs := make([]Expr, len(k.ParentIDs))
	for i, id := range k.ParentIDs {
		refs[i] = Expr{Op: OpRef, KPIID: id}
	}
	switch k.CalculationMethod {
	case model.CalculationSum:
		return &Expr{Op: OpSum, Args: refs}, nil
	case model.CalculationAverage:
		return &Expr{Op: OpAvg, Args: refs}, nil
	case model.CalculationCount:
		return &Expr{Op: OpCount, Args: refs}, nil
	case model.CalculationRatio:
		if len(refs) != 2 {
			return nil, fmt.Errorf("%w: ratio kpi needs exactly two parents", ErrInvalidFormula)
		}
		return &Expr{Op: OpRatio, Args: refs}, nil
	}
	return nil, fmt.Errorf("%w: calculation method %q", ErrNotCalculated, k.CalculationMethod)
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}
