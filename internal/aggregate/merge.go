package aggregate

import "github.com/polyharvest/polyharvest/internal/models"

// MergedPoint is one date of a merged YES/NO price series. A nil price
// means no observation has occurred yet for that token; unknown is
// distinct from a zero price.
type MergedPoint struct {
	Date string
	Yes  *float64
	No   *float64
}

// MergeDaily reconstructs a continuous daily series over [startTs, endTs]
// from two sparse date->price maps by forward-fill: each token carries
// its last observed value across dates with no new observation, and dates
// before a token's first observation stay nil.
func MergeDaily(yes, no map[string]float64, startTs, endTs int64) []MergedPoint {
	dates := models.DateRange(startTs, endTs)
	points := make([]MergedPoint, 0, len(dates))

	var lastYes, lastNo *float64
	for _, date := range dates {
		if v, ok := yes[date]; ok {
			v := v
			lastYes = &v
		}
		if v, ok := no[date]; ok {
			v := v
			lastNo = &v
		}
		points = append(points, MergedPoint{Date: date, Yes: lastYes, No: lastNo})
	}
	return points
}
