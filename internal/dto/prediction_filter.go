// PredictionFilter narrows archived prediction listings.
package dto

import "time"

type PredictionFilter struct {
	Filename      string
	DateAfter     time.Time
	DateBefore    time.Time
	MinDetections int
	Limit         int
	Offset        int
}
