// Package profile loads the founder profile that founder-fit stages judge
// candidates against.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlaceholderPrefix starts every per-field placeholder name.
const PlaceholderPrefix = "Profile_"

// SummaryPlaceholder holds the whole profile rendered as "key: value" lines.
const SummaryPlaceholder = "FounderProfile"

const emptySummary = "(no founder profile provided)"

// Profile is a free-form founder description: background, skills,
// interests, network, motivation, constraints and so on.
type Profile map[string]any

// Load reads a JSON or YAML profile. The format follows the extension;
// .yaml and .yml are YAML, everything else JSON.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var p Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p == nil {
		p = Profile{}
	}
	return p, nil
}

// Placeholders returns the template data for p: one Profile_<key> entry
// per field plus the FounderProfile summary. An empty profile still
// provides the summary.
func (p Profile) Placeholders() map[string]string {
	data := make(map[string]string, len(p)+1)
	for k, v := range p {
		data[PlaceholderPrefix+placeholderName(k)] = formatValue(v)
	}
	data[SummaryPlaceholder] = p.Summary()
	return data
}

// Summary renders the profile as sorted "key: value" lines.
func (p Profile) Summary() string {
	if len(p) == 0 {
		return emptySummary
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, formatValue(p[k])))
	}
	return strings.Join(lines, "\n")
}

func placeholderName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(key))
}

// formatValue flattens a decoded value: lists join with ", ", nested
// objects become indented JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			if s := formatValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	default:
		raw, err := json.MarshalIndent(x, "", "  ")
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}
