package processchain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	huc12Pattern      = regexp.MustCompile(`^[0-9]{12}$`)
)

// Equals renders an OGR attribute filter `column = 'value'`. The column must
// be a plain identifier and the value is emitted as a SQL string literal with
// embedded quotes doubled, so the value can never terminate the literal.
func Equals(column, value string) (string, error) {
	if !identifierPattern.MatchString(column) {
		return "", fmt.Errorf("filter column %q is not a plain identifier", column)
	}
	if strings.ContainsRune(value, 0) {
		return "", fmt.Errorf("filter value contains a NUL byte")
	}
	return column + " = " + quoteLiteral(value), nil
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// ValidHUC12 reports whether id is a 12 digit hydrologic unit code.
func ValidHUC12(id string) bool {
	return huc12Pattern.MatchString(id)
}
