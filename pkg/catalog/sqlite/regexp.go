package sqlite

import (
	"database/sql/driver"
	"fmt"
	"regexp"

	"github.com/maypok86/otter/v2"
	"modernc.org/sqlite"
)

// patterns holds compiled filter expressions; a query evaluates the same
// pattern once per row.
var patterns = otter.Must(&otter.Options[string, *regexp.Regexp]{
	MaximumSize: 256,
})

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("regexp", 2, regexpFunc)
}

// regexpFunc implements regexp(pattern, value), which is also what SQLite
// calls for "value REGEXP pattern".
func regexpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	pattern, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("regexp: pattern must be text, got %T", args[0])
	}
	var value string
	switch v := args[1].(type) {
	case nil:
		return int64(0), nil
	case string:
		value = v
	case []byte:
		value = string(v)
	default:
		value = fmt.Sprint(v)
	}

	re, ok := patterns.GetIfPresent(pattern)
	if !ok {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, err
		}
		patterns.Set(pattern, re)
	}
	if re.MatchString(value) {
		return int64(1), nil
	}
	return int64(0), nil
}
