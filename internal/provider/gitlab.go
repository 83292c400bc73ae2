package provider

import "github.com/detentsh/fisher/internal/registry"

// GitLab validates GitLab webhook deliveries: an optional static token
// header and an optional event whitelist, matching GitHub's
// accept-and-skip semantics for whitelist misses.
type GitLab struct {
	cfg registry.ProviderConfig
}

func (g *GitLab) Evaluate(req Request) Result {
	event := req.Header.Get("X-Gitlab-Event")
	token := req.Header.Get("X-Gitlab-Token")

	if g.cfg.Secret != "" && !constantTimeEqual(token, g.cfg.Secret) {
		return Result{Verdict: Reject, Reason: "invalid or missing X-Gitlab-Token"}
	}

	env := map[string]string{"FISHER_GITLAB_EVENT": event}

	if len(g.cfg.Events) > 0 && !containsString(g.cfg.Events, event) {
		return Result{Verdict: AcceptSkip, Env: env}
	}

	return Result{Verdict: Accept, Env: env}
}
