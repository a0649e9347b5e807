package ml

type ColumnKind string

const (
	Numeric     ColumnKind = "numeric"
	Categorical ColumnKind = "categorical"
)

type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// FeatureSchema is the ordered column set a model was trained on.
type FeatureSchema []Column

func (s FeatureSchema) Names() []string {
	names := make([]string, len(s))
	for i, col := range s {
		names[i] = col.Name
	}
	return names
}

func BusDelaySchema() FeatureSchema {
	return FeatureSchema{
		{Name: "segment_id", Kind: Categorical},
		{Name: "distance_km", Kind: Numeric},
		{Name: "avg_speed_kmph", Kind: Numeric},
		{Name: "traffic_mean", Kind: Numeric},
		{Name: "traffic_std", Kind: Numeric},
		{Name: "traffic_max", Kind: Numeric},
		{Name: "traffic_p90", Kind: Numeric},
		{Name: "rain_intensity", Kind: Numeric},
		{Name: "temperature_celsius", Kind: Numeric},
		{Name: "visibility_km", Kind: Numeric},
		{Name: "num_signals", Kind: Numeric},
		{Name: "num_stops", Kind: Numeric},
		{Name: "is_holiday", Kind: Categorical},
		{Name: "day_of_week", Kind: Categorical},
		{Name: "hour_of_day", Kind: Categorical},
	}
}

func ExampleRecord() Record {
	return Record{
		"segment_id":          3,
		"distance_km":         1.60,
		"avg_speed_kmph":      30.03,
		"traffic_mean":        1.48,
		"traffic_std":         0.14,
		"traffic_max":         1.82,
		"traffic_p90":         1.70,
		"rain_intensity":      2.53,
		"temperature_celsius": 28.52,
		"visibility_km":       6.07,
		"num_signals":         0,
		"num_stops":           2,
		"is_holiday":          1,
		"day_of_week":         6,
		"hour_of_day":         13,
	}
}
