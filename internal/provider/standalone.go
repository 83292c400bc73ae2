package provider

import "github.com/detentsh/fisher/internal/registry"

// Standalone validates a request against a shared secret and/or source
// IP allowlist, with no dependency on any third-party webhook format.
type Standalone struct {
	cfg registry.ProviderConfig
}

func (s *Standalone) Evaluate(req Request) Result {
	if len(s.cfg.From) > 0 && !ipInList(req.SourceIP, s.cfg.From) {
		return Result{Verdict: Reject, Reason: "source IP not in allowed list"}
	}

	if s.cfg.Secret == "" {
		return Result{Verdict: Accept}
	}

	paramName := s.cfg.ParamName
	if paramName == "" {
		paramName = "secret"
	}
	headerName := s.cfg.HeaderName
	if headerName == "" {
		headerName = "X-Fisher-Secret"
	}

	got, ok := headerOrQuery(req, headerName, paramName)
	if !ok || !constantTimeEqual(got, s.cfg.Secret) {
		return Result{Verdict: Reject, Reason: "missing or incorrect secret"}
	}

	return Result{Verdict: Accept}
}
