package urlx

import (
	"strings"
)

// Rules is the per-request domain policy, assembled at claim time from
// the blocked_domains table and the configured manufacturer whitelist.
type Rules struct {
	// blockedLabels maps lowercased aggregator source labels
	// ("Mercado Livre") to the domain they stand for. Primary form.
	blockedLabels map[string]string
	// blockedDomains is the raw eTLD+1 block set. Secondary form.
	blockedDomains map[string]bool
	// whitelist holds non-Brazilian manufacturer domains accepted by
	// the foreign-domain rule (dell.com, hp.com, ...).
	whitelist map[string]bool
}

// NewRules builds the policy from label->domain pairs and a whitelist.
func NewRules(labelToDomain map[string]string, extraDomains, whitelist []string) *Rules {
	r := &Rules{
		blockedLabels:  make(map[string]string, len(labelToDomain)),
		blockedDomains: make(map[string]bool, len(labelToDomain)+len(extraDomains)),
		whitelist:      make(map[string]bool, len(whitelist)),
	}
	for label, domain := range labelToDomain {
		domain = strings.ToLower(strings.TrimSpace(domain))
		r.blockedLabels[normalizeLabel(label)] = domain
		r.blockedDomains[domain] = true
	}
	for _, d := range extraDomains {
		r.blockedDomains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	for _, d := range whitelist {
		r.whitelist[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return r
}

func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// SourceDomain maps an aggregator source label to a known domain, if
// the label is on the blocked mapping.
func (r *Rules) SourceDomain(label string) (string, bool) {
	d, ok := r.blockedLabels[normalizeLabel(label)]
	return d, ok
}

// IsBlockedSource reports whether the aggregator source label maps to a
// blocked domain. Consistent with IsBlockedDomain by construction.
func (r *Rules) IsBlockedSource(label string) bool {
	_, ok := r.SourceDomain(label)
	return ok
}

// IsBlockedDomain reports whether the eTLD+1 is on the block set.
func (r *Rules) IsBlockedDomain(domain string) bool {
	return r.blockedDomains[strings.ToLower(domain)]
}

// IsWhitelisted reports whether the domain is an allowed manufacturer
// domain despite not being Brazilian.
func (r *Rules) IsWhitelisted(domain string) bool {
	return r.whitelist[strings.ToLower(domain)]
}

// AllowedDomain applies the acceptance rule of the probe: not blocked,
// and Brazilian or whitelisted.
func (r *Rules) AllowedDomain(domain string) bool {
	if r.IsBlockedDomain(domain) {
		return false
	}
	return IsBrazilian(domain) || r.IsWhitelisted(domain)
}
