package algo

// Variance 计算样本的总体方差，空样本返回0
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

// Less 先比较代价，代价相同(EPS内)时比较物理距离
func Less(costA, distA, costB, distB float64) bool {
	if costA < costB-EPS {
		return true
	}
	if costA > costB+EPS {
		return false
	}
	return distA < distB-EPS
}
