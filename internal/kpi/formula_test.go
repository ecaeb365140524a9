package kpi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/automation/internal/model"
)

func TestParseFormula_Eval(t *testing.T) {
	values := map[string]float64{"a": 10, "b": 4, "c": -3}
	tests := []struct {
		formula string
		want    float64
	}{
		{`{"op":"ref","kpi_id":"a"}`, 10},
		{`{"op":"const","value":2.5}`, 2.5},
		{`{"op":"sum","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"}]}`, 14},
		{`{"op":"avg","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"}]}`, 7},
		{`{"op":"min","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"c"}]}`, -3},
		{`{"op":"max","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"}]}`, 10},
		{`{"op":"count","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"},{"op":"ref","kpi_id":"c"}]}`, 3},
		{`{"op":"ratio","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"}]}`, 2.5},
		{`{"op":"abs","args":[{"op":"ref","kpi_id":"c"}]}`, 3},
		{`{"op":"sum","args":[{"op":"ref","kpi_id":"missing"},{"op":"const","value":1}]}`, 1},
	}
	for _, tt := range tests {
		e, err := ParseFormula(json.RawMessage(tt.formula))
		require.NoError(t, err, tt.formula)
		got, err := e.Eval(values)
		require.NoError(t, err, tt.formula)
		assert.InDelta(t, tt.want, got, 1e-9, tt.formula)
	}
}

func TestParseFormula_Rejects(t *testing.T) {
	for _, f := range []string{
		`not json`,
		`{"op":"exec","args":[]}`,
		`{"op":"ref"}`,
		`{"op":"sum","args":[]}`,
		`{"op":"ratio","args":[{"op":"const","value":1}]}`,
		`{"op":"abs","args":[{"op":"const"},{"op":"const"}]}`,
		`{"op":"sum","args":[{"op":"nope"}]}`,
	} {
		_, err := ParseFormula(json.RawMessage(f))
		assert.ErrorIs(t, err, ErrInvalidFormula, f)
	}
}

func TestParseFormula_DepthLimit(t *testing.T) {
	e := Expr{Op: OpConst, Value: 1}
	for i := 0; i < maxFormulaDepth+2; i++ {
		e = Expr{Op: OpAbs, Args: []Expr{e}}
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	_, err = ParseFormula(raw)
	assert.ErrorIs(t, err, ErrInvalidFormula)
}

func TestEval_RatioByZero(t *testing.T) {
	e, err := ParseFormula(json.RawMessage(`{"op":"ratio","args":[{"op":"ref","kpi_id":"a"},{"op":"ref","kpi_id":"b"}]}`))
	require.NoError(t, err)
	_, err = e.Eval(map[string]float64{"a": 1})
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRefs_Deduplicates(t *testing.T) {
	e, err := ParseFormula(json.RawMessage(`{"op":"sum","args":[{"op":"ref","kpi_id":"a"},{"op":"abs","args":[{"op":"ref","kpi_id":"a"}]},{"op":"ref","kpi_id":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, e.Refs())
}

func TestFormulaFor(t *testing.T) {
	calc := func(method string, parents ...string) *model.KPI {
		return &model.KPI{DataSourceType: model.KPISourceCalculated, CalculationMethod: method, ParentIDs: parents}
	}
	values := map[string]float64{"p1": 6, "p2": 2}

	tests := []struct {
		kpi  *model.KPI
		want float64
	}{
		{calc(model.CalculationSum, "p1", "p2"), 8},
		{calc(model.CalculationAverage, "p1", "p2"), 4},
		{calc(model.CalculationCount, "p1", "p2"), 2},
		{calc(model.CalculationRatio, "p1", "p2"), 3},
	}
	for _, tt := range tests {
		e, err := FormulaFor(tt.kpi)
		require.NoError(t, err, tt.kpi.CalculationMethod)
		got, err := e.Eval(values)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, tt.kpi.CalculationMethod)
	}

	custom := calc(model.CalculationCustom)
	custom.Formula = json.RawMessage(`{"op":"max","args":[{"op":"ref","kpi_id":"p1"},{"op":"const","value":100}]}`)
	e, err := FormulaFor(custom)
	require.NoError(t, err)
	got, _ := e.Eval(values)
	assert.Equal(t, 100.0, got)

	_, err = FormulaFor(&model.KPI{DataSourceType: model.KPISourceManual})
	assert.ErrorIs(t, err, ErrNotCalculated)
	_, err = FormulaFor(calc(model.CalculationSum))
	assert.ErrorIs(t, err, ErrNotCalculated)
	_, err = FormulaFor(calc(model.CalculationPercentage, "p1"))
	assert.ErrorIs(t, err, ErrNotCalculated)
	_, err = FormulaFor(calc(model.CalculationRatio, "p1"))
	assert.ErrorIs(t, err, ErrInvalidFormula)
	_, err = FormulaFor(calc(model.CalculationCustom, "p1"))
	assert.ErrorIs(t, err, ErrInvalidFormula)
}
