package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// configLine is one parsed `## Key: value` header line.
type configLine struct {
	key   string
	value string // raw JSON value text
}

var recognizedKeys = map[string]bool{
	"Fisher":           true,
	"Fisher-Status":    true,
	"Fisher-Standalone": true,
	"Fisher-GitHub":    true,
	"Fisher-GitLab":    true,
}

// scanConfigComments reads the header of a script file and returns the
// ordered list of `##`-prefixed configuration lines. Parsing stops at the
// first line that is neither blank, a shebang, a single-`#` comment, nor a
// `##` configuration comment.
func scanConfigComments(r io.Reader) ([]configLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var lines []configLine
	first := true
	for scanner.Scan() {
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if first && strings.HasPrefix(trimmed, "#!") {
			first = false
			continue
		}
		first = false

		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "##") {
			body := strings.TrimSpace(strings.TrimPrefix(trimmed, "##"))
			key, value, ok := strings.Cut(body, ":")
			if !ok {
				return nil, fmt.Errorf("malformed configuration comment %q: expected \"Key: value\"", trimmed)
			}
			lines = append(lines, configLine{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			// Plain shell comment, allowed before the config block.
			continue
		}

		// First non-comment, non-blank line: stop scanning.
		break
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// fisherOpts is the decoded `## Fisher: {...}` value.
type fisherOpts struct {
	Priority *int  `json:"priority"`
	Parallel *bool `json:"parallel"`
}

// standaloneOpts is the decoded `## Fisher-Standalone: {...}` value.
type standaloneOpts struct {
	Secret     string   `json:"secret"`
	ParamName  string   `json:"param_name"`
	HeaderName string   `json:"header_name"`
	From       []string `json:"from"`
}

// githubOpts is the decoded `## Fisher-GitHub: {...}` value.
type githubOpts struct {
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

// gitlabOpts is the decoded `## Fisher-GitLab: {...}` value.
type gitlabOpts struct {
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

// statusOpts is the decoded `## Fisher-Status: {...}` value.
type statusOpts struct {
	Events  []string `json:"events"`
	Scripts []string `json:"scripts"`
}

// allowedKeysFor maps each recognized comment key to the JSON object keys
// its value is permitted to carry. Any key present in the raw value but
// absent here fails the script load.
var allowedKeysFor = map[string]map[string]bool{
	"Fisher":            {"priority": true, "parallel": true},
	"Fisher-Standalone": {"secret": true, "param_name": true, "header_name": true, "from": true},
	"Fisher-GitHub":      {"secret": true, "events": true},
	"Fisher-GitLab":      {"secret": true, "events": true},
	"Fisher-Status":      {"events": true, "scripts": true},
}

// checkUnknownKeys walks the raw JSON object with gjson (rather than
// relying on encoding/json's DisallowUnknownFields, which only reports
// the first offender) so a malformed comment's error message names every
// rejected key at once.
func checkUnknownKeys(key, rawValue string) error {
	allowed := allowedKeysFor[key]
	parsed := gjson.Parse(rawValue)
	if !parsed.IsObject() {
		return fmt.Errorf("%s: value must be a JSON object", key)
	}

	var unknown []string
	parsed.ForEach(func(k, _ gjson.Result) bool {
		if !allowed[k.String()] {
			unknown = append(unknown, k.String())
		}
		return true
	})
	if len(unknown) > 0 {
		return fmt.Errorf("%s: unknown key(s) %s", key, strings.Join(unknown, ", "))
	}
	return nil
}

// parseProviders interprets the ordered configuration lines into Fisher
// options plus the ordered provider list, applying in file order.
func parseProviders(lines []configLine) (fisherOpts, []ProviderConfig, error) {
	var opts fisherOpts
	var providers []ProviderConfig

	for _, line := range lines {
		if !recognizedKeys[line.key] {
			// Unrecognized comment keys are simply not Fisher directives;
			// ignore rather than fail, so arbitrary header comments don't
			// break script loading.
			continue
		}

		if err := checkUnknownKeys(line.key, line.value); err != nil {
			return opts, nil, err
		}

		switch line.key {
		case "Fisher":
			if err := json.Unmarshal([]byte(line.value), &opts); err != nil {
				return opts, nil, fmt.Errorf("Fisher: %w", err)
			}
		case "Fisher-Standalone":
			var v standaloneOpts
			if err := json.Unmarshal([]byte(line.value), &v); err != nil {
				return opts, nil, fmt.Errorf("Fisher-Standalone: %w", err)
			}
			providers = append(providers, ProviderConfig{
				Kind:       "standalone",
				Secret:     v.Secret,
				ParamName:  defaultString(v.ParamName, "secret"),
				HeaderName: defaultString(v.HeaderName, "X-Fisher-Secret"),
				From:       v.From,
			})
		case "Fisher-GitHub":
			var v githubOpts
			if err := json.Unmarshal([]byte(line.value), &v); err != nil {
				return opts, nil, fmt.Errorf("Fisher-GitHub: %w", err)
			}
			providers = append(providers, ProviderConfig{Kind: "github", Secret: v.Secret, Events: v.Events})
		case "Fisher-GitLab":
			var v gitlabOpts
			if err := json.Unmarshal([]byte(line.value), &v); err != nil {
				return opts, nil, fmt.Errorf("Fisher-GitLab: %w", err)
			}
			providers = append(providers, ProviderConfig{Kind: "gitlab", Secret: v.Secret, Events: v.Events})
		case "Fisher-Status":
			var v statusOpts
			if err := json.Unmarshal([]byte(line.value), &v); err != nil {
				return opts, nil, fmt.Errorf("Fisher-Status: %w", err)
			}
			providers = append(providers, ProviderConfig{Kind: "status", Events: v.Events, Scripts: v.Scripts})
		}
	}

	return opts, providers, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
