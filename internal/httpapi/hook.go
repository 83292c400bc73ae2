package httpapi

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/detentsh/fisher/internal/provider"
	"github.com/detentsh/fisher/internal/queue"
)

var errBodyTooLarge = errors.New("request body exceeds maximum size")

type hookResponse struct {
	Status string `json:"status"`
	JobID  int64  `json:"job_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if s.unavailable() {
		writeJSON(w, http.StatusServiceUnavailable, hookResponse{Status: "unavailable"})
		return
	}

	name := r.PathValue("name")
	desc := s.snapshot().Lookup(name)
	if desc == nil {
		writeJSON(w, http.StatusNotFound, hookResponse{Status: "not_found"})
		return
	}

	sourceIP, err := provider.ResolveSourceIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr, s.cfg.BehindProxies)
	if err != nil {
		s.debitAndRespond(w, peerHost(r.RemoteAddr), "insufficient X-Forwarded-For entries for configured behind-proxies")
		return
	}

	bodyPath, body, err := s.persistBody(r.Body)
	if err != nil {
		s.debitAndRespond(w, sourceIP, "request body too large or unreadable")
		return
	}

	req := provider.Request{
		Method:   r.Method,
		Header:   r.Header,
		Query:    map[string][]string(r.URL.Query()),
		Body:     body,
		SourceIP: sourceIP,
	}

	providers := make([]provider.Provider, 0, len(desc.Providers))
	for _, pc := range desc.Providers {
		providers = append(providers, provider.Build(pc))
	}
	result := provider.Evaluate(providers, req)

	switch result.Verdict {
	case provider.Reject:
		removeIfSet(bodyPath)
		s.debitAndRespond(w, sourceIP, result.Reason)
		return
	case provider.AcceptSkip:
		removeIfSet(bodyPath)
		writeJSON(w, http.StatusOK, hookResponse{Status: "skipped"})
		return
	}

	env := map[string]string{}
	for k, v := range result.Env {
		env[k] = v
	}
	env["FISHER_REQUEST_IP"] = sourceIP
	env["FISHER_REQUEST_BODY"] = bodyPath

	job := &queue.Job{
		ID:              s.queue.NextID(),
		ScriptName:      desc.Name,
		ExecPath:        desc.ExecPath,
		Parallel:        desc.Parallel,
		Priority:        desc.Priority,
		Env:             env,
		RequestBodyPath: bodyPath,
		SourceIP:        sourceIP,
		Provenance:      queue.Provenance{Webhook: desc.Name},
	}

	if err := s.queue.Enqueue(job); err != nil {
		removeIfSet(bodyPath)
		writeJSON(w, http.StatusServiceUnavailable, hookResponse{Status: "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, hookResponse{Status: "accepted", JobID: job.ID})
}

// debitAndRespond consumes one rate-limit token for ip and answers 429 if
// the bucket was already empty, otherwise 400 with reason.
func (s *Server) debitAndRespond(w http.ResponseWriter, ip, reason string) {
	if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow(ip) {
		writeJSON(w, http.StatusTooManyRequests, hookResponse{Status: "rate_limited"})
		return
	}
	writeJSON(w, http.StatusBadRequest, hookResponse{Status: "rejected", Reason: reason})
}

// persistBody streams r up to maxBodySize+1 bytes to a temp file and
// returns both the file path and the bytes read, so the provider
// pipeline can validate signatures without re-reading the file.
func (s *Server) persistBody(r io.Reader) (path string, body []byte, err error) {
	body, err = io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return "", nil, err
	}
	if len(body) > maxBodySize {
		return "", nil, errBodyTooLarge
	}

	f, err := os.CreateTemp("", "fisher-body-")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), body, nil
}

func removeIfSet(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func peerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
