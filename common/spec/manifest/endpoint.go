package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// Endpoint is the parsed form of a ServerSpec: a transport kind, an address
// (URL for http, command path for pipe), positional arguments, and
// environment overrides.
type Endpoint struct {
	Name      string
	Transport Transport
	// Address is the endpoint URL (http) or the command to execute (pipe).
	Address string
	// Args are positional arguments for pipe commands. HTTP endpoints never
	// carry args: the colon is part of the URL.
	Args []string
	// Env holds KEY=VAL environment overrides for pipe commands.
	Env map[string]string
}

// hostPortRE matches bare host:port[/path] targets that should be treated as
// URLs even without a scheme, e.g. "127.0.0.1:9000/mcp" or "localhost:8000".
var hostPortRE = regexp.MustCompile(
	`^(?:localhost|(?:\d{1,3}\.){3}\d{1,3}|[A-Za-z0-9.-]+):\d+(?:/.*)?$`,
)

// looksLikeURL reports whether a target should be dialed over HTTP rather
// than executed as a command.
func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || hostPortRE.MatchString(s)
}

// normalizeURL prefixes scheme-less URL-ish targets with "http://".
func normalizeURL(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "http://" + s
}

// ParseEndpoint parses the compact endpoint spec syntax
//
//	target[:arg1,arg2][^ENV=VAL...]
//
// where target is either a URL (detected by scheme or host:port pattern and
// normalized to http://) or a command path. Only command targets are split on
// ":" for positional arguments; empty argument segments are dropped.
func ParseEndpoint(name, spec string) (Endpoint, error) {
	if strings.TrimSpace(spec) == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint spec")
	}

	parts := strings.Split(spec, "^")
	head := parts[0]

	var env map[string]string
	if len(parts) > 1 {
		env = make(map[string]string, len(parts)-1)
		for _, chunk := range parts[1:] {
			k, v, ok := strings.Cut(chunk, "=")
			if !ok || k == "" {
				return Endpoint{}, fmt.Errorf("bad env spec %q in %q (expected KEY=VAL)", chunk, spec)
			}
			env[k] = v
		}
	}

	ep := Endpoint{Name: name, Env: env}

	if looksLikeURL(head) {
		ep.Transport = TransportHTTP
		ep.Address = normalizeURL(head)
		return ep, nil
	}

	ep.Transport = TransportPipe
	if target, argstr, ok := strings.Cut(head, ":"); ok {
		ep.Address = target
		for _, a := range strings.Split(argstr, ",") {
			if a != "" {
				ep.Args = append(ep.Args, a)
			}
		}
	} else {
		ep.Address = head
	}
	if ep.Address == "" {
		return Endpoint{}, fmt.Errorf("endpoint spec %q has no target", spec)
	}
	return ep, nil
}

// Endpoints parses every configured server spec, preserving manifest order.
func (c *Config) Endpoints() ([]Endpoint, error) {
	eps := make([]Endpoint, 0, len(c.Servers))
	for i, s := range c.Servers {
		ep, err := ParseEndpoint(s.Name, s.Spec)
		if err != nil {
			return nil, fmt.Errorf("servers[%d] (%q): %w", i, s.Name, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
