package engine

// visitQuota bounds the number of vertices one run may process.
//
// Cyclic schedules are legal, so a loop whose condition never turns false
// would otherwise run forever. A limit of zero or less means unlimited.
type visitQuota struct {
	limit   int
	current int
}

func newVisitQuota(limit int) *visitQuota {
	return &visitQuota{limit: limit}
}

// take counts one visit and reports whether the run is still within quota.
func (q *visitQuota) take() bool {
	q.current++
	return q.limit <= 0 || q.current <= q.limit
}
