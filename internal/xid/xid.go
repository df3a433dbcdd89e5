package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// OrderNumber formats WQ + YYYYMMDD + six upper-case hex characters.
func OrderNumber(at time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return "WQ" + at.UTC().Format("20060102") + suffix
}
