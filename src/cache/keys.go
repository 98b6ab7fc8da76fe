package cache

import (
	"fmt"
	"time"
)

const SummaryPrefix = "payments-summary:"

func PaymentKey(id fmt.Stringer) string {
	return "payment:" + id.String()
}

func SummaryKey(from, to time.Time) string {
	return fmt.Sprintf("%s%d:%d", SummaryPrefix, from.UnixMilli(), to.UnixMilli())
}
