package bot

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const completedSuffix = " COMPLETED"

// StatusFile is the per-slot hand-off file: line-oriented "Key: value" pairs
// with an optional trailing COMPLETED marker, rewritten as a full-file
// overwrite so restarts resume where the previous run left off.
type StatusFile struct {
	path string
}

func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

func (s *StatusFile) read() (map[string]string, error) {
	values := make(map[string]string)
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		values[key] = value
	}
	return values, nil
}

func (s *StatusFile) write(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, values[k])
	}
	return os.WriteFile(s.path, []byte(b.String()), 0644)
}

// Value returns the stored value for key and whether it carries the
// COMPLETED marker.
func (s *StatusFile) Value(key string) (string, bool, error) {
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	if !ok {
		return "", false, nil
	}
	if strings.HasSuffix(v, completedSuffix) {
		return strings.TrimSuffix(v, completedSuffix), true, nil
	}
	return v, false, nil
}

// Set stores key: value, dropping any COMPLETED marker.
func (s *StatusFile) Set(key, value string) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

// MarkCompleted appends the COMPLETED marker to the stored value for key.
func (s *StatusFile) MarkCompleted(key string) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	v := values[key]
	if !strings.HasSuffix(v, completedSuffix) {
		values[key] = v + completedSuffix
	}
	return s.write(values)
}

// NextInRotation returns the entry after current, wrapping at the end. An
// unknown current restarts the rotation.
func NextInRotation(rotation []string, current string) string {
	if len(rotation) == 0 {
		return ""
	}
	for i, v := range rotation {
		if v == current {
			return rotation[(i+1)%len(rotation)]
		}
	}
	return rotation[0]
}
