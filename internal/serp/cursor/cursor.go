// Package cursor implements the opaque cursor protocol for the ranked
// keyword risk feed. A cursor encodes a position in the (score desc, query
// asc, keyword id asc) total order; the next page begins at the first item
// strictly after that position.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// scoreWidth is the fixed, zero-padded width of the 5-decimal score field.
// The padding is part of the observable contract.
const scoreWidth = 9

// Position is a decoded cursor: the sort key of the last item on the
// previous page.
type Position struct {
	Score     float64
	Query     string
	KeywordID string
}

// Encode serialises a position as "{score}:{query}:{keywordID}" with the
// score formatted to 5 decimals zero-padded to 9 characters, then
// base64url-encodes the result.
func Encode(p Position) string {
	raw := fmt.Sprintf("%0*.5f:%s:%s", scoreWidth, p.Score, p.Query, p.KeywordID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor. A malformed cursor is treated as "no
// cursor": the boolean is false and paging starts from the top.
func Decode(s string) (Position, bool) {
	if s == "" {
		return Position{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Position{}, false
	}
	decoded := string(raw)
	if len(decoded) <= scoreWidth || decoded[scoreWidth] != ':' {
		return Position{}, false
	}
	score, err := strconv.ParseFloat(decoded[:scoreWidth], 64)
	if err != nil {
		return Position{}, false
	}

	// Queries may contain ':'; keyword ids never do, so the id is the part
	// after the last separator.
	rest := decoded[scoreWidth+1:]
	sep := strings.LastIndex(rest, ":")
	if sep < 0 || sep == len(rest)-1 {
		return Position{}, false
	}
	return Position{
		Score:     score,
		Query:     rest[:sep],
		KeywordID: rest[sep+1:],
	}, true
}

// After reports whether an item with the given sort key comes strictly
// after the cursor position: lower score, or equal score with a lexically
// later query, or equal score and query with a greater id.
func (p Position) After(score float64, query, keywordID string) bool {
	if score != p.Score {
		return score < p.Score
	}
	if query != p.Query {
		return query > p.Query
	}
	return keywordID > p.KeywordID
}
