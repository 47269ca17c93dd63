package service

import "github.com/samber/lo"

// normalizeSeatIDs drops zero ids and duplicates while keeping the caller's
// order.
func normalizeSeatIDs(ids []uint64) []uint64 {
	return lo.Uniq(lo.Filter(ids, func(id uint64, _ int) bool { return id != 0 }))
}
