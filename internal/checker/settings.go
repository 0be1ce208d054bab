package checker

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoKeywords = errors.New("checker: keyword list is empty")

// Settings is the optional YAML override for the match configuration:
//
//	keywords:
//	  - 배당기준일
//	detail_types: [B001, I001]
type Settings struct {
	Keywords    []string `yaml:"keywords"`
	DetailTypes []string `yaml:"detail_types"`
}

func DefaultSettings() Settings {
	return Settings{
		Keywords:    append([]string(nil), DefaultKeywords...),
		DetailTypes: append([]string(nil), DefaultDetailTypes...),
	}
}

// LoadSettings reads path; an empty path yields the defaults. Keys left out
// of the file keep their defaults, an explicit empty keyword list is an error.
func LoadSettings(path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("checker: read settings: %w", err)
	}
	return ParseSettings(data)
}

func ParseSettings(data []byte) (Settings, error) {
	var raw struct {
		Keywords    *[]string `yaml:"keywords"`
		DetailTypes *[]string `yaml:"detail_types"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("checker: parse settings: %w", err)
	}

	settings := DefaultSettings()
	if raw.Keywords != nil {
		settings.Keywords = compact(*raw.Keywords, false)
		if len(settings.Keywords) == 0 {
			return Settings{}, ErrNoKeywords
		}
	}
	if raw.DetailTypes != nil {
		settings.DetailTypes = compact(*raw.DetailTypes, true)
	}
	return settings, nil
}

// compact drops blank entries. Keywords keep inner spacing since the spaced
// and unspaced variants are distinct keywords.
func compact(values []string, upper bool) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if upper {
			value = strings.ToUpper(strings.TrimSpace(value))
		}
		out = append(out, value)
	}
	return out
}
