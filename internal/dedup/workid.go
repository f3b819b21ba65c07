package dedup

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkID identifies one pull request: "<owner/repo>#<number>".
type WorkID struct {
	Repo   string
	Number int
}

func (w WorkID) String() string {
	return w.Repo + "#" + strconv.Itoa(w.Number)
}

// ParseWorkID parses the string form produced by WorkID.String.
func ParseWorkID(s string) (WorkID, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return WorkID{}, fmt.Errorf("invalid work id %q: want <owner/repo>#<number>", s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n <= 0 {
		return WorkID{}, fmt.Errorf("invalid work id %q: bad number", s)
	}
	return WorkID{Repo: s[:i], Number: n}, nil
}
