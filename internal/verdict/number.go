package verdict

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxJSONStarts bounds how many '{' positions are tried as JSON starts.
const maxJSONStarts = 16

// ExtractNumber reads a numeric field named key from raw. A JSON object
// anywhere in the text (code fences included) is consulted first, then
// labeled lines such as "SCORE: 4" or "**Score** = 4/5". For "n/m" the
// numerator is returned. Keys match case-insensitively with spaces,
// underscores and hyphens treated alike.
func ExtractNumber(raw, key string) (float64, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, false
	}
	if v, ok := numberFromJSON(raw, key); ok {
		return v, true
	}
	return numberFromLines(raw, key)
}

func numberFromJSON(raw, key string) (float64, bool) {
	want := canonicalKey(key)
	offset := 0
	for tries := 0; tries < maxJSONStarts; tries++ {
		idx := strings.IndexByte(raw[offset:], '{')
		if idx < 0 {
			return 0, false
		}
		start := offset + idx
		offset = start + 1

		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&obj); err != nil {
			continue
		}
		if v, ok := numberField(obj, key, want); ok {
			return v, true
		}
	}
	return 0, false
}

// numberField picks the field matching key. An exact key wins; otherwise
// the lexicographically first key with the same canonical form is used.
func numberField(obj map[string]any, key, want string) (float64, bool) {
	var keys []string
	for k := range obj {
		if canonicalKey(k) == want {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == key) != (keys[j] == key) {
			return keys[i] == key
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if v, ok := numberValue(obj[k]); ok {
			return v, true
		}
	}
	return 0, false
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		return parseNumber(n)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func numberFromLines(raw, key string) (float64, bool) {
	parts := strings.FieldsFunc(key, isKeySeparator)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	pattern := `(?im)^[\s#*>_\-` + "`" + `•]*` + strings.Join(quoted, `[\s_\-]+`) +
		`[\s*_` + "`" + `]*[:=\-][\s*_` + "`" + `]*\$?(-?[\d,]*\d(?:\.\d+)?)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, false
	}

	matches := re.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, false
	}
	return parseNumber(matches[len(matches)-1][1])
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	if slash := strings.IndexByte(s, '/'); slash > 0 {
		s = strings.TrimSpace(s[:slash])
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func canonicalKey(k string) string {
	return strings.ToLower(strings.Join(strings.FieldsFunc(k, isKeySeparator), "_"))
}

func isKeySeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '\t'
}
