// Package provider implements the per-request validation chain: each
// configured provider inspects an incoming webhook and either accepts it
// (possibly skipping job creation), rejects it, or declares itself not
// applicable so the next provider in the chain can try.
package provider

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // GitHub's X-Hub-Signature is HMAC-SHA1 by protocol, not our choice
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/detentsh/fisher/internal/registry"
)

// Verdict is the outcome of running one provider against a request.
type Verdict int

const (
	// NotApplicable means this provider does not recognize the request;
	// the pipeline should try the next provider.
	NotApplicable Verdict = iota
	// Accept means the request is valid and a job should be enqueued.
	Accept
	// AcceptSkip means the request is valid but no job should be
	// enqueued (e.g. a GitHub ping, or an events-whitelist miss).
	AcceptSkip
	// Reject means the request failed validation.
	Reject
)

// Request is the subset of an incoming HTTP request a provider needs.
type Request struct {
	Method string
	Header http.Header
	Query  map[string][]string
	Body   []byte
	// SourceIP is the already-resolved client address (see ResolveSourceIP).
	SourceIP string
}

// Result is what a single provider returns.
type Result struct {
	Verdict Verdict
	// Env contributes environment variables when Verdict is Accept.
	Env map[string]string
	// Reason explains a Reject verdict, for the HTTP response and logs.
	Reason string
}

// Provider validates one incoming request against one script's
// configuration.
type Provider interface {
	Evaluate(req Request) Result
}

// Build constructs the provider for one parsed provider configuration;
// callers build a script's ordered chain by calling it once per entry of
// the descriptor's Providers.
func Build(cfg registry.ProviderConfig) Provider {
	switch cfg.Kind {
	case "standalone":
		return &Standalone{cfg: cfg}
	case "github":
		return &GitHub{cfg: cfg}
	case "gitlab":
		return &GitLab{cfg: cfg}
	case "status":
		return &Status{}
	default:
		return notApplicableProvider{}
	}
}

type notApplicableProvider struct{}

func (notApplicableProvider) Evaluate(Request) Result {
	return Result{Verdict: NotApplicable}
}

// Status never matches an HTTP request; status hooks are only invoked by
// the status fan-out (internal/status), never by the HTTP front-end.
type Status struct{}

func (Status) Evaluate(Request) Result {
	return Result{Verdict: NotApplicable}
}

// Evaluate runs every provider in order. The request is accepted iff at
// least one provider accepts and none in the prefix before it rejects.
// A Reject from any provider fails the request immediately. Env
// contributions from every accepting provider are merged in order.
func Evaluate(providers []Provider, req Request) Result {
	env := make(map[string]string)
	skip := false
	accepted := false

	for _, p := range providers {
		res := p.Evaluate(req)
		switch res.Verdict {
		case Reject:
			return Result{Verdict: Reject, Reason: res.Reason}
		case Accept, AcceptSkip:
			accepted = true
			if res.Verdict == AcceptSkip {
				skip = true
			}
			for k, v := range res.Env {
				env[k] = v
			}
		case NotApplicable:
			// try next
		}
	}

	if !accepted {
		return Result{Verdict: Reject, Reason: "no provider accepted the request"}
	}
	if skip {
		return Result{Verdict: AcceptSkip, Env: env}
	}
	return Result{Verdict: Accept, Env: env}
}

// constantTimeEqual compares two strings without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// verifyHMACSHA1Hex checks that sigHeader (e.g. "sha1=<hex>") is the
// hex-encoded HMAC-SHA1 of body keyed by secret.
func verifyHMACSHA1Hex(sigHeader, body, secret string) bool {
	_, hexSig, found := strings.Cut(sigHeader, "=")
	if !found {
		hexSig = sigHeader
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	expected := mac.Sum(nil)
	return hmac.Equal(sig, expected)
}

// ipInList reports whether ip matches any CIDR or bare IP in list.
func ipInList(ip string, list []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range list {
		if entry == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

func headerOrQuery(req Request, headerName, paramName string) (string, bool) {
	if v := req.Header.Get(headerName); v != "" {
		return v, true
	}
	if vs, ok := req.Query[paramName]; ok && len(vs) > 0 && vs[0] != "" {
		return vs[0], true
	}
	return "", false
}
