package aws

import (
	"strconv"
	"strings"
	"time"
)

// parseReportLine extracts the request id and execution duration from a
// Lambda REPORT log line. The line is tab-separated "key: value" pairs, e.g.
//
//	REPORT RequestId: 8f5f... \tDuration: 182.11 ms\tBilled Duration: 183 ms\t...
//
// Duration is reported in milliseconds. Lines without a request id or a
// parseable duration yield ok == false.
func parseReportLine(line string) (string, time.Duration, bool) {
	vals := map[string]string{}
	for _, part := range strings.Split(line, "\t") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, rest, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		vals[key] = fields[0]
	}

	id, ok := vals["REPORT RequestId"]
	if !ok {
		id, ok = vals["START RequestId"]
	}
	if !ok || id == "" {
		return "", 0, false
	}

	ms, err := strconv.ParseFloat(vals["Duration"], 64)
	if err != nil {
		return "", 0, false
	}
	return id, time.Duration(ms * float64(time.Millisecond)), true
}
