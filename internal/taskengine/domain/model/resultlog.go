package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ChildOutcome is one entry of a parent's decoded result log: either a
// successful child result or the error from a permanently failed child.
type ChildOutcome struct {
	ChildID int64
	Result  string // raw JSON, set when Error == ""
	Error   string // raw JSON-or-text error, set when the child failed permanently
}

// AppendSuccess appends a successful child outcome line to a result log,
// following the `<child_id>:<json-result>` convention of §3.3.
func AppendSuccess(log string, childID int64, jsonResult string) string {
	return log + fmt.Sprintf("%d:%s\n", childID, jsonResult)
}

// AppendFailure appends a permanent-failure child outcome line, following
// the `<child_id>!<json-error>` convention.
func AppendFailure(log string, childID int64, jsonError string) string {
	return log + fmt.Sprintf("%d!%s\n", childID, jsonError)
}

// DecodeResultLog parses a newline-delimited child outcome log and returns
// the entries sorted by child_id, ascending. Blank lines are ignored so an
// empty log decodes to an empty, non-nil slice.
func DecodeResultLog(log string) ([]ChildOutcome, error) {
	lines := strings.Split(log, "\n")
	outcomes := make([]ChildOutcome, 0, len(lines))

	for _, line := range lines {
		if line == "" {
			continue
		}

		sepIdx := strings.IndexAny(line, ":!")
		if sepIdx < 0 {
			return nil, fmt.Errorf("malformed result log line %q", line)
		}

		idPart := line[:sepIdx]
		sep := line[sepIdx]
		rest := line[sepIdx+1:]

		childID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed child id in result log line %q: %w", line, err)
		}

		outcome := ChildOutcome{ChildID: childID}
		if sep == '!' {
			outcome.Error = rest
		} else {
			outcome.Result = rest
		}
		outcomes = append(outcomes, outcome)
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ChildID < outcomes[j].ChildID })
	return outcomes, nil
}
