// PredictionsPage is a paginated response payload for the archive listing.
package dto

import "receiptdetect/internal/model"

type PredictionsPage struct {
	Predictions []model.Prediction `json:"predictions"`
	Length      int                `json:"length"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Limit       int                `json:"pageSize"`
}
