package lang

import (
	"fmt"
	"html"
	"log/slog"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-yaml"
)

// Module is a named set of functions that expressions call as
// "module.Func(...)".
type Module map[string]any

// Registry resolves module identifiers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry returns a registry holding the builtin modules: strings,
// html, url, math and yaml.
func NewRegistry() *Registry {
	return &Registry{
		modules: map[string]Module{
			"strings": stringsModule(),
			"html":    htmlModule(),
			"url":     urlModule(),
			"math":    mathModule(),
			"yaml":    yamlModule(),
		},
	}
}

// Register adds or replaces the module with the given identifier.
func (r *Registry) Register(id string, m Module) error {
	if !isIdent(id) {
		return ErrUnknownModule.With(slog.String("module", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.modules == nil {
		r.modules = make(map[string]Module)
	}

	r.modules[id] = m

	return nil
}

// Lookup returns the module with the given identifier.
func (r *Registry) Lookup(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[id]

	return m, ok
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.modules)
}

// normalizeModules sorts ids and removes duplicates.
func normalizeModules(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[strings.TrimSpace(id)] = struct{}{}
	}

	delete(set, "")

	return sortedKeys(set)
}

func stringsModule() Module {
	return Module{
		"ToUpper":    strings.ToUpper,
		"ToLower":    strings.ToLower,
		"TrimSpace":  strings.TrimSpace,
		"Trim":       strings.Trim,
		"TrimPrefix": strings.TrimPrefix,
		"TrimSuffix": strings.TrimSuffix,
		"Contains":   strings.Contains,
		"HasPrefix":  strings.HasPrefix,
		"HasSuffix":  strings.HasSuffix,
		"Index":      strings.Index,
		"Replace":    strings.ReplaceAll,
		"Repeat":     strings.Repeat,
		"Split":      strings.Split,
		"Fields":     strings.Fields,
		"Join": func(elems any, sep string) (string, error) {
			parts, err := stringSlice(elems)
			if err != nil {
				return "", err
			}

			return strings.Join(parts, sep), nil
		},
		"Title": func(s string) string {
			words := strings.Fields(s)
			for i, w := range words {
				r, n := utf8.DecodeRuneInString(w)
				words[i] = string(unicode.ToTitle(r)) + w[n:]
			}

			return strings.Join(words, " ")
		},
	}
}

func htmlModule() Module {
	return Module{
		"Escape":   html.EscapeString,
		"Unescape": html.UnescapeString,
	}
}

func urlModule() Module {
	return Module{
		"QueryEscape":   url.QueryEscape,
		"QueryUnescape": url.QueryUnescape,
		"PathEscape":    url.PathEscape,
		"PathUnescape":  url.PathUnescape,
	}
}

// mathModule takes numbers of any Go numeric type, since expression
// literals are ints and declared numbers are float64.
func mathModule() Module {
	unary := func(fn func(float64) float64) func(any) (float64, error) {
		return func(x any) (float64, error) {
			f, err := toFloat(x)
			if err != nil {
				return 0, err
			}

			return fn(f), nil
		}
	}

	binary := func(fn func(a, b float64) float64) func(any, any) (float64, error) {
		return func(x, y any) (float64, error) {
			a, err := toFloat(x)
			if err != nil {
				return 0, err
			}

			b, err := toFloat(y)
			if err != nil {
				return 0, err
			}

			return fn(a, b), nil
		}
	}

	return Module{
		"Abs":   unary(math.Abs),
		"Ceil":  unary(math.Ceil),
		"Floor": unary(math.Floor),
		"Round": unary(math.Round),
		"Sqrt":  unary(math.Sqrt),
		"Trunc": unary(math.Trunc),
		"Max":   binary(math.Max),
		"Min":   binary(math.Min),
		"Mod":   binary(math.Mod),
		"Pow":   binary(math.Pow),
		"Pi":    math.Pi,
		"Format": func(x any, prec int) (string, error) {
			f, err := toFloat(x)
			if err != nil {
				return "", err
			}

			return strconv.FormatFloat(f, 'f', prec, 64), nil
		},
	}
}

func yamlModule() Module {
	return Module{
		"Marshal": func(v any) (string, error) {
			b, err := yaml.Marshal(v)
			if err != nil {
				return "", err
			}

			return string(b), nil
		},
	}
}

func toFloat(x any) (float64, error) {
	rv := reflect.ValueOf(x)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}

	return 0, fmt.Errorf("%s is not a number", typeName(x))
}

func stringSlice(v any) ([]string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%s is not a list", typeName(v))
	}

	out := make([]string, rv.Len())
	for i := range out {
		out[i] = stringify(rv.Index(i).Interface())
	}

	return out, nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}

	return reflect.TypeOf(v).String()
}
