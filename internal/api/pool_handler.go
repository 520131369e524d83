package api

import (
	"net/http"
	"sort"
)

// ListPools возвращает статус всех пулов соединений.
// GET /api/v1/pools
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.pools))
	for name := range h.pools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]PoolResponse, 0, len(names))
	for _, name := range names {
		result = append(result, PoolFromStat(h.pools[name].Stat()))
	}

	List(w, result, len(result))
}

// GetPool возвращает статус пула по классу нагрузки.
// GET /api/v1/pools/{class}
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	class := r.PathValue("class")

	pool, ok := h.pools[class]
	if !ok {
		NotFound(w, "unknown pool class")
		return
	}

	Success(w, PoolFromStat(pool.Stat()))
}
