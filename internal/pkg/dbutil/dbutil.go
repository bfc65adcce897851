package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation pq.ErrorCode = "23505"

// gendry renders paging the MySQL way, "LIMIT offset,count".
var offsetLimit = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize makes a gendry query runnable on postgres: paging becomes
// "LIMIT count OFFSET offset" and placeholders are numbered.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := offsetLimit.FindStringIndex(query); loc != nil {
		at := strings.Count(query[:loc[0]], "?")
		if at+1 < len(args) {
			args[at], args[at+1] = args[at+1], args[at]
			query = query[:loc[0]] + "LIMIT ? OFFSET ?" + query[loc[1]:]
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// Returning finalizes an insert that reports column back.
func Returning(query string, args []interface{}, column string) (string, []interface{}) {
	return Finalize(query+" RETURNING "+column, args)
}

// IsConflict reports a unique violation anywhere in err's chain.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
