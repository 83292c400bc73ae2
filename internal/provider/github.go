package provider

import "github.com/detentsh/fisher/internal/registry"

// GitHub validates GitHub webhook deliveries: optional HMAC-SHA1 body
// signature, ping events, and an optional event whitelist.
type GitHub struct {
	cfg registry.ProviderConfig
}

func (g *GitHub) Evaluate(req Request) Result {
	event := req.Header.Get("X-GitHub-Event")
	delivery := req.Header.Get("X-GitHub-Delivery")
	sig := req.Header.Get("X-Hub-Signature")

	if g.cfg.Secret != "" {
		if sig == "" || !verifyHMACSHA1Hex(sig, string(req.Body), g.cfg.Secret) {
			return Result{Verdict: Reject, Reason: "invalid or missing X-Hub-Signature"}
		}
	}

	env := map[string]string{
		"FISHER_GITHUB_EVENT":       event,
		"FISHER_GITHUB_DELIVERY_ID": delivery,
	}

	if event == "ping" {
		return Result{Verdict: AcceptSkip, Env: env}
	}

	if len(g.cfg.Events) > 0 && !containsString(g.cfg.Events, event) {
		// Events-whitelist misses are a quiet accept-and-skip, not a
		// reject: a valid signature already proved the sender is
		// legitimate, so this should not cost the rate limiter.
		return Result{Verdict: AcceptSkip, Env: env}
	}

	return Result{Verdict: Accept, Env: env}
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
