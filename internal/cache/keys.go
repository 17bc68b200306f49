package cache

import "fmt"

const keyPrefix = "forecast"

func ForecastsKey(documentID uint) string {
	return fmt.Sprintf("%s:doc:%d:forecasts", keyPrefix, documentID)
}

func StatisticsKey(documentID uint) string {
	return fmt.Sprintf("%s:doc:%d:statistics", keyPrefix, documentID)
}

func EvaluationKey(documentID uint) string {
	return fmt.Sprintf("%s:doc:%d:evaluation", keyPrefix, documentID)
}

// DocumentPattern matches every cached view of a document.
func DocumentPattern(documentID uint) string {
	return fmt.Sprintf("%s:doc:%d:*", keyPrefix, documentID)
}
