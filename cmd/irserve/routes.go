package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/guard"
	"github.com/effectus/irkit/store"
)

type routeConfig struct {
	Path     string        `yaml:"path" json:"path"`
	Methods  []string      `yaml:"methods" json:"methods"`
	Document string        `yaml:"document" json:"document"`
	Title    string        `yaml:"title" json:"title"`
	Env      string        `yaml:"env" json:"env"`
	Policy   *guard.Policy `yaml:"policy" json:"policy"`
	OnFail   *guard.OnFail `yaml:"on_fail" json:"on_fail"`
}

type route struct {
	path     string
	prefix   bool
	methods  map[string]struct{}
	document string
	title    string
	env      eval.Environment
	policy   *guard.Policy
	onFail   *guard.OnFail
}

type routeTable struct {
	routes []route
}

func compileRoutes(configs []routeConfig) (*routeTable, error) {
	table := &routeTable{}
	for _, rc := range configs {
		path := strings.TrimSpace(rc.Path)
		if path == "" {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("route %q: path must start with /", rc.Path)
		}
		if err := store.ValidateName(rc.Document); err != nil {
			return nil, fmt.Errorf("route %q: %w", rc.Path, err)
		}
		env, err := eval.ParseEnvironment(rc.Env)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rc.Path, err)
		}
		if rc.Policy != nil && strings.TrimSpace(rc.Policy.Tag) == "" {
			return nil, fmt.Errorf("route %q: policy tag is required", rc.Path)
		}
		methods := make(map[string]struct{})
		for _, method := range rc.Methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "" {
				continue
			}
			methods[method] = struct{}{}
		}
		prefix := strings.HasSuffix(path, "*")
		if prefix {
			path = strings.TrimSuffix(path, "*")
		}
		table.routes = append(table.routes, route{
			path:     path,
			prefix:   prefix,
			methods:  methods,
			document: rc.Document,
			title:    rc.Title,
			env:      env,
			policy:   rc.Policy,
			onFail:   rc.OnFail,
		})
	}

	// Exact paths win over prefixes, longer prefixes over shorter ones.
	sort.SliceStable(table.routes, func(i, j int) bool {
		a, b := table.routes[i], table.routes[j]
		if a.prefix != b.prefix {
			return !a.prefix
		}
		return len(a.path) > len(b.path)
	})
	return table, nil
}

func (t *routeTable) match(r *http.Request) (route, bool) {
	if t == nil || r == nil {
		return route{}, false
	}
	path := r.URL.Path
	method := strings.ToUpper(r.Method)
	for _, rt := range t.routes {
		if rt.prefix {
			if !strings.HasPrefix(path, rt.path) {
				continue
			}
		} else if path != rt.path {
			continue
		}
		if len(rt.methods) > 0 {
			if _, ok := rt.methods[method]; !ok {
				continue
			}
		} else if method != http.MethodGet && method != http.MethodHead {
			continue
		}
		return rt, true
	}
	return route{}, false
}

func (t *routeTable) len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}
