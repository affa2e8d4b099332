package generation

import (
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Candidate extractors, tried in order. The first non-empty string wins.
var (
	directURLExprs = []string{
		"video_url",
		"url",
		"download_url",
	}

	// media descriptors are only consulted on status responses
	mediaURLExprs = []string{
		"(media || files)[?url || download_url] | [0] | url || download_url",
	}

	jobIDExprs = []string{
		"uuid",
		"id",
		"job_id",
	}

	errorMessageExprs = []string{
		"error_message",
		"error.message",
		"error",
		"message",
	}
)

const (
	statusExpr     = "status"
	statusDescExpr = "status_desc"
)

// firstString returns the first candidate that evaluates to a non-empty string.
func firstString(doc any, exprs []string) string {
	for _, expr := range exprs {
		if s, ok := asString(search(expr, doc)); ok {
			return s
		}
	}
	return ""
}

// firstIdentifier is firstString that also accepts numeric identifiers.
func firstIdentifier(doc any, exprs []string) string {
	for _, expr := range exprs {
		switch v := search(expr, doc).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// directURL looks for a terminal URL in the top level of a response.
func directURL(doc any) string {
	return firstString(doc, directURLExprs)
}

// resultURL extends directURL with the media/files descriptor list.
func resultURL(doc any) string {
	if u := directURL(doc); u != "" {
		return u
	}
	return firstString(doc, mediaURLExprs)
}

// statusCode reads the numeric provider status. Numeric strings are accepted.
func statusCode(doc any) (int, bool) {
	switch v := search(statusExpr, doc).(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func statusDescription(doc any) string {
	s, _ := asString(search(statusDescExpr, doc))
	return s
}

func errorMessage(doc any) string {
	return firstString(doc, errorMessageExprs)
}

func search(expr string, doc any) any {
	if doc == nil {
		return nil
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil
	}
	return v
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
