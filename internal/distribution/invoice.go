package distribution

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// invoiceZone fixes the calendar day of an invoice regardless of server TZ.
var invoiceZone = time.FixedZone("WIB", 7*60*60)

// InvoiceNumber derives D-<YYYYMMDD>-<STORECODE>-<NNNN> from the batch time
// and store. The suffix is the millisecond timestamp modulo 10000, so the same
// stored fields always give the same number.
func InvoiceNumber(distributedAt time.Time, store Store) string {
	code := strings.ToUpper(strings.TrimSpace(store.Code))
	if code == "" {
		code = strconv.FormatInt(store.ID, 10)
	}
	return fmt.Sprintf("D-%s-%s-%04d", distributedAt.In(invoiceZone).Format("20060102"), code, distributedAt.UnixMilli()%10000)
}

// distributionTime turns the requested date into the batch timestamp. A bare
// date keeps the current clock time so batches of one day stay distinct.
func distributionTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	now = now.In(invoiceZone)
	var at time.Time
	switch {
	case raw == "":
		at = now
	case len(raw) == len("2006-01-02"):
		day, err := time.ParseInLocation("2006-01-02", raw, invoiceZone)
		if err != nil {
			return time.Time{}, err
		}
		at = time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), invoiceZone)
	default:
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, err
		}
		at = parsed
	}
	return at.Truncate(time.Millisecond), nil
}
