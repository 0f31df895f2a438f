// Package config is a flat key=value store, one pair per line.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrMalformed = errors.New("malformed config")
	ErrNoSuchKey = errors.New("no such key")
	ErrBadValue  = errors.New("bad config value")
)

// ConfigMap holds string values by key. The zero value is empty and ready to use.
type ConfigMap struct {
	kv map[string]string
}

func New() *ConfigMap {
	return &ConfigMap{kv: make(map[string]string)}
}

// Parse adds every pair in s. Empty lines are skipped; any other line must
// split on '=' into exactly two non-empty parts. Keys already present keep
// their value, and so does the first of two equal keys in s. Nothing is
// added when a line is malformed.
func (c *ConfigMap) Parse(s string) error {
	pairs := make([][2]string, 0)

	scanner := bufio.NewScanner(strings.NewReader(s))
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		parts := strings.Split(line, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("%w: line %d: %q", ErrMalformed, lineno, line)
		}
		pairs = append(pairs, [2]string{parts[0], parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	c.init()
	for _, p := range pairs {
		if _, ok := c.kv[p[0]]; !ok {
			c.kv[p[0]] = p[1]
		}
	}
	return nil
}

// Serialize renders every pair as key=value, sorted by key
func (c *ConfigMap) Serialize() string {
	var sb strings.Builder
	for _, k := range c.Keys() {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(c.kv[k])
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (c *ConfigMap) Keys() []string {
	keys := make([]string, 0, len(c.kv))
	for k := range c.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *ConfigMap) Size() int {
	return len(c.kv)
}

func (c *ConfigMap) Clear() {
	c.kv = make(map[string]string)
}

func (c *ConfigMap) HasKey(key string) bool {
	_, ok := c.kv[key]
	return ok
}

func (c *ConfigMap) Get(key string) (string, error) {
	v, ok := c.kv[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoSuchKey, key)
	}
	return v, nil
}

func (c *ConfigMap) GetInt(key string) (int, error) {
	return getAs(c, key, strconv.Atoi)
}

func (c *ConfigMap) GetUint(key string) (uint64, error) {
	return getAs(c, key, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 0, 64)
	})
}

func (c *ConfigMap) GetBool(key string) (bool, error) {
	return getAs(c, key, strconv.ParseBool)
}

func (c *ConfigMap) GetDuration(key string) (time.Duration, error) {
	return getAs(c, key, time.ParseDuration)
}

func getAs[T any](c *ConfigMap, key string, parse func(string) (T, error)) (T, error) {
	var zero T
	s, err := c.Get(key)
	if err != nil {
		return zero, err
	}
	v, err := parse(s)
	if err != nil {
		return zero, fmt.Errorf("%w: %q=%q: %w", ErrBadValue, key, s, err)
	}
	return v, nil
}

// Put inserts or replaces the value of key
func (c *ConfigMap) Put(key, value string) {
	c.init()
	c.kv[key] = value
}

// PutValue stores v formatted with fmt.Sprint
func (c *ConfigMap) PutValue(key string, v any) {
	c.Put(key, fmt.Sprint(v))
}

func (c *ConfigMap) Erase(key string) error {
	if !c.HasKey(key) {
		return fmt.Errorf("%w: %q", ErrNoSuchKey, key)
	}
	delete(c.kv, key)
	return nil
}

func (c *ConfigMap) init() {
	if c.kv == nil {
		c.kv = make(map[string]string)
	}
}

// Load parses the file at path into a new ConfigMap
func Load(fs afero.Fs, path string) (*ConfigMap, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	c := New()
	if err := c.Parse(string(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadOrEmpty is Load with a missing file read as an empty ConfigMap
func LoadOrEmpty(fs afero.Fs, path string) (*ConfigMap, error) {
	c, err := Load(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return c, err
}

func (c *ConfigMap) Save(fs afero.Fs, path string) error {
	if err := afero.WriteFile(fs, path, []byte(c.Serialize()), 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
