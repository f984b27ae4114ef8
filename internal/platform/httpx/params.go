package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// IDParam parses a positive int64 chi URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid(name, "id tidak valid")
	}
	return id, nil
}

// IDsFromQuery reads the id-or-ids convention: ?id=1, ?ids=1,2, ?ids=[1,2] or
// repeated ?ids= values.
func IDsFromQuery(r *http.Request) ([]int64, error) {
	q := r.URL.Query()
	raw := append([]string{}, q["ids"]...)
	raw = append(raw, q["id"]...)
	var ids []int64
	for _, value := range raw {
		value = strings.Trim(strings.TrimSpace(value), "[]")
		for _, part := range strings.Split(value, ",") {
			part = strings.Trim(strings.TrimSpace(part), `"`)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, shared.Invalid("ids", "id %q tidak valid", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, shared.Invalid("ids", "id wajib diisi")
	}
	return ids, nil
}

// IdempotencyKey returns the trimmed Idempotency-Key header.
func IdempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
