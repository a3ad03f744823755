package expr

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// DefaultDateFormat is used by FormatDate when no format is given.
const DefaultDateFormat = "yyyy-MM-dd"

const maxCoalesceArgs = 8

var dateTokens = strings.NewReplacer(
	"yyyy", "2006",
	"MMM", "Jan",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatDate renders value in UTC using a yyyy/MM/dd style format. Empty or
// unparseable values render as "". The format "iso" yields RFC 3339 with
// milliseconds.
func FormatDate(value any, format string) string {
	t, ok := toTime(value)
	if !ok {
		return ""
	}
	t = t.UTC()
	if format == "" {
		format = DefaultDateFormat
	}
	if format == "iso" || format == "ISO" {
		return t.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return t.Format(dateTokens.Replace(format))
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case bool:
		return time.Time{}, false
	default:
		ms := ToNumber(v)
		if ms == 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}
}

// Coalesce returns the first value that is neither nil nor "", or "".
func Coalesce(values ...any) any {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		return v
	}
	return ""
}

// ToNumber converts value to a finite float64; anything else becomes 0.
func ToNumber(value any) float64 {
	var n float64
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		f, ok := normalize(v).(float64)
		if !ok {
			return 0
		}
		n = f
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func helperFunctions() []cel.EnvOption {
	coalesceOverloads := make([]cel.FunctionOpt, 0, maxCoalesceArgs)
	for n := 1; n <= maxCoalesceArgs; n++ {
		args := make([]*cel.Type, n)
		for i := range args {
			args[i] = cel.DynType
		}
		coalesceOverloads = append(coalesceOverloads, cel.Overload(
			"coalesce_"+strconv.Itoa(n), args, cel.DynType,
			cel.FunctionBinding(func(vals ...ref.Val) ref.Val {
				for _, v := range vals {
					if v == types.NullValue {
						continue
					}
					if s, ok := v.(types.String); ok && s == "" {
						continue
					}
					return v
				}
				return types.String("")
			}),
		))
	}

	return []cel.EnvOption{
		cel.Function("formatDate",
			cel.Overload("formatDate_dyn", []*cel.Type{cel.DynType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.String(FormatDate(toNative(v), DefaultDateFormat))
				}),
			),
			cel.Overload("formatDate_dyn_string", []*cel.Type{cel.DynType, cel.StringType}, cel.StringType,
				cel.BinaryBinding(func(v, format ref.Val) ref.Val {
					return types.String(FormatDate(toNative(v), string(format.(types.String))))
				}),
			),
		),
		cel.Function("coalesce", coalesceOverloads...),
		cel.Function("toNumber",
			cel.Overload("toNumber_dyn", []*cel.Type{cel.DynType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Double(ToNumber(toNative(v)))
				}),
			),
		),
	}
}
