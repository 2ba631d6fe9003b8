package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/formsync/formsync/internal/domain"
)

// Coerce turns one raw cell string into a tagged value. Text stays canonical;
// Numeric and Boolean are derived annotations and may both be set ("1" is a
// number and a truthy token at the same time).
func Coerce(raw string) domain.Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Value{Empty: true}
	}

	v := domain.Value{Text: raw}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		v.Numeric = &f
	}
	switch strings.ToLower(trimmed) {
	case "true", "yes", "1":
		b := true
		v.Boolean = &b
	case "false", "no", "0":
		b := false
		v.Boolean = &b
	}
	return v
}
