package model

// Detection represents one merged box stored with a prediction.
type Detection struct {
	ID           int64   `json:"id"`
	PredictionID int64   `json:"prediction_id"`
	Confidence   float64 `json:"confidence"`
	X1           float64 `json:"x1"`
	Y1           float64 `json:"y1"`
	X2           float64 `json:"x2"`
	Y2           float64 `json:"y2"`
	XCenter      float64 `json:"x_center"`
	YCenter      float64 `json:"y_center"`
	WNorm        float64 `json:"w_norm"`
	HNorm        float64 `json:"h_norm"`
}
