// Package classifier maps fetched meeting pages to availability verdicts.
//
// Classification is a pure function over the page source: an ordered table of
// literal substring signatures is scanned and the first match wins. Order
// matters because malformed pages can carry several signatures at once; the
// earlier entries are the more specific or more urgent conditions.
package classifier

import (
	"net/url"
	"strings"
)

// DefaultNativeHosts lists hosts whose pages the signature table understands.
var DefaultNativeHosts = []string{"meet.google.com"}

// Signature is one row of the match table.
type Signature struct {
	Name    string
	Verdict Verdict
	Needles []string
	// Slow marks a NotOpenYet signature caused by the page still loading.
	// Callers log it as a warning; it never escalates.
	Slow bool
}

// DefaultSignatures is the match table, highest precedence first.
var DefaultSignatures = []Signature{
	{Name: "ready_to_join", Verdict: Open, Needles: []string{"Ready to join?", "Ask to join"}},
	{Name: "not_logged_in", Verdict: ReauthRequired, Needles: []string{"Not your computer?"}},
	{Name: "not_started", Verdict: NotOpenYet, Needles: []string{
		"Check your meeting code",
		"You can't create a meeting yourself",
		"meeting hasn't started",
	}},
	{Name: "code_expired", Verdict: LinkExpired, Needles: []string{"Your meeting code has expired"}},
	{Name: "invalid_name", Verdict: InvalidLink, Needles: []string{"Invalid video call name"}},
	{Name: "getting_ready", Verdict: NotOpenYet, Needles: []string{"Getting ready"}, Slow: true},
	{Name: "cannot_join", Verdict: BotDetected, Needles: []string{"You can't join this video call"}},
}

// Config is the immutable classifier configuration.
type Config struct {
	// NativeHosts are hosts (or parent domains) the signature table applies to.
	// Empty means DefaultNativeHosts.
	NativeHosts []string
	// Signatures overrides the match table. Empty means DefaultSignatures.
	Signatures []Signature
}

// Match is the detailed classification result.
type Match struct {
	Verdict Verdict
	// Signature is the name of the matched table row; "non_native" for links the
	// table does not apply to and "" when nothing matched.
	Signature string
	Slow      bool
}

type Classifier struct {
	hosts []string
	sigs  []Signature
}

func New(cfg Config) *Classifier {
	hosts := cfg.NativeHosts
	if len(hosts) == 0 {
		hosts = DefaultNativeHosts
	}
	norm := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			norm = append(norm, h)
		}
	}
	sigs := cfg.Signatures
	if len(sigs) == 0 {
		sigs = DefaultSignatures
	}
	return &Classifier{hosts: norm, sigs: append([]Signature(nil), sigs...)}
}

// Native reports whether rawURL points at a service the signature table understands.
func (c *Classifier) Native(rawURL string) bool {
	raw := strings.TrimSpace(rawURL)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host := strings.ToLower(u.Hostname())
		for _, h := range c.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
	// Scheme-less or unparsable: fall back to a substring check.
	low := strings.ToLower(raw)
	for _, h := range c.hosts {
		if strings.Contains(low, h) {
			return true
		}
	}
	return false
}

// Classify returns the verdict for a fetched page.
func (c *Classifier) Classify(content, rawURL string) Verdict {
	return c.Match(content, rawURL).Verdict
}

// Match is Classify plus the name of the matched signature.
func (c *Classifier) Match(content, rawURL string) Match {
	if !c.Native(rawURL) {
		return Match{Verdict: Open, Signature: "non_native"}
	}
	for _, s := range c.sigs {
		for _, n := range s.Needles {
			if n != "" && strings.Contains(content, n) {
				return Match{Verdict: s.Verdict, Signature: s.Name, Slow: s.Slow}
			}
		}
	}
	return Match{Verdict: Unrecognized}
}
