package services

// CronbachAlpha estimates the internal consistency of a block of scale questions.
// matrix is [participants][questions]; population variance is used throughout, so
// perfectly correlated questions yield 1. Results are clamped to [0,1].
func CronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 || len(matrix[0]) < 2 {
		return 0
	}
	k := len(matrix[0])
	columns := make([][]float64, k)
	totals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for j, v := range row {
			columns[j] = append(columns[j], v)
			totals[i] += v
		}
	}
	totalVar := variance(totals)
	if totalVar == 0 {
		return 0
	}
	var itemVars float64
	for _, col := range columns {
		itemVars += variance(col)
	}
	kf := float64(k)
	alpha := kf / (kf - 1) * (1 - itemVars/totalVar)
	return min(max(alpha, 0), 1)
}

func variance(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += (x - mean) * (x - mean)
	}
	return sum / float64(len(xs))
}
