package roledoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedFrontMatter indicates an opening fence without a matching
// closing fence, or options that fail to parse.
var ErrMalformedFrontMatter = errors.New("roledoc: malformed frontmatter")

// Options is the typed header of a role document. Pointer fields
// distinguish "absent" from zero so a role document can override the
// shared document field by field.
type Options struct {
	AuthorName       *string    `yaml:"author_name"`
	ErrorDelay       *int       `yaml:"error_delay"`
	IterationTimeout *int       `yaml:"iteration_timeout"`
	RestartDelay     *int       `yaml:"restart_delay"`
	RotationInterval *int       `yaml:"assistant_rotation_interval"`
	RotationPhases   StringList `yaml:"rotation_phases"`
	RotationType     *string    `yaml:"rotation_type"`
}

// StringList accepts both a YAML sequence and a comma-separated scalar
type StringList []string

// UnmarshalYAML implements custom decoding for StringList
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var arr []string
		if err := value.Decode(&arr); err != nil {
			return err
		}
		*l = arr
		return nil
	case yaml.ScalarNode:
		*l = splitComma(value.Value)
		return nil
	}
	return fmt.Errorf("roledoc: expected list or comma-separated string")
}

func splitComma(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseDocument splits a role document into its options header and body.
// A document that does not start with a `---` fence has no options: the
// whole content is the body. CRLF line endings are normalized first.
func ParseDocument(content []byte) (Options, string, error) {
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Options{}, string(normalized), nil
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		// An opening fence at EOF with no body still counts as closed
		if trimmed := bytes.TrimSuffix(rest, []byte("\n")); bytes.HasSuffix(trimmed, []byte("\n---")) {
			parts = [][]byte{trimmed[:len(trimmed)-len("\n---")], nil}
		} else {
			return Options{}, "", ErrMalformedFrontMatter
		}
	}
	var opts Options
	if err := yaml.Unmarshal(parts[0], &opts); err != nil {
		return Options{}, "", fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	return opts, string(parts[1]), nil
}

// merge overlays non-nil fields of other onto o
func (o Options) merge(other Options) Options {
	if other.AuthorName != nil {
		o.AuthorName = other.AuthorName
	}
	if other.ErrorDelay != nil {
		o.ErrorDelay = other.ErrorDelay
	}
	if other.IterationTimeout != nil {
		o.IterationTimeout = other.IterationTimeout
	}
	if other.RestartDelay != nil {
		o.RestartDelay = other.RestartDelay
	}
	if other.RotationInterval != nil {
		o.RotationInterval = other.RotationInterval
	}
	if other.RotationPhases != nil {
		o.RotationPhases = other.RotationPhases
	}
	if other.RotationType != nil {
		o.RotationType = other.RotationType
	}
	return o
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
