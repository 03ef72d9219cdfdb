// Package properties reads and writes the line-oriented key/value text
// files the record stores use as control files. One `key = value` pair per
// line; keys and values are trimmed of surrounding whitespace (record keys
// are not, this format is config only); the last occurrence of a key wins.
package properties

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

type Properties struct {
	m map[string]string
}

func New() *Properties {
	return &Properties{m: make(map[string]string)}
}

// Load reads a properties file from disk.
func Load(path string) (*Properties, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	p := New()
	if err := p.read(file); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p, nil
}

func (p *Properties) read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return fmt.Errorf("line %d: missing '='", lineNo)
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" {
			return fmt.Errorf("line %d: empty property name", lineNo)
		}
		p.m[key] = strings.TrimSpace(line[eq+1:])
	}
	return scanner.Err()
}

// Save writes the properties to path, replacing any previous content.
func (p *Properties) Save(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := p.write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (p *Properties) write(w io.Writer) error {
	keys := make([]string, 0, len(p.m))
	for key := range p.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", key, p.m[key]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Properties) Get(key string) (string, bool) {
	value, ok := p.m[strings.TrimSpace(key)]
	return value, ok
}

// GetDefault returns the value for key, or def when absent.
func (p *Properties) GetDefault(key, def string) string {
	if value, ok := p.Get(key); ok {
		return value
	}
	return def
}

func (p *Properties) GetInt(key string) (int64, error) {
	value, ok := p.Get(key)
	if !ok {
		return 0, fmt.Errorf("property %q not set", key)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("property %q: %w", key, err)
	}
	return n, nil
}

func (p *Properties) Set(key, value string) {
	p.m[strings.TrimSpace(key)] = strings.TrimSpace(value)
}

func (p *Properties) Delete(key string) {
	delete(p.m, strings.TrimSpace(key))
}

func (p *Properties) Len() int {
	return len(p.m)
}
