package request

// CreateDataPoint writes a KPI value for a day.
type CreateDataPoint struct {
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
	Value *float64 `json:"value" validate:"required"`
	Notes string   `json:"notes" validate:"max=2000"`
}
