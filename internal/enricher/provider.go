package enricher

import (
	"context"

	"leadpipe/internal/leadmodel"
)

// Operation names the fixed set of enrichment dimensions (spec §4.6):
// company lookup, domain discovery, contact finding, size estimation,
// related-project search.
type Operation string

const (
	OpCompanyLookup    Operation = "company_lookup"
	OpDomainDiscovery  Operation = "domain_discovery"
	OpContactFinding   Operation = "contact_finding"
	OpSizeEstimation   Operation = "size_estimation"
	OpRelatedProjects  Operation = "related_projects"
)

// Result is one provider's enrichment output, applied to a Lead's gap
// fields only (conservative merge, never overwrites a non-null field).
type Result struct {
	Company         *leadmodel.Company
	Contacts        []leadmodel.Contact
	EstimatedSize   *leadmodel.Area
	RelatedProjects []string
}

// Provider performs one enrichment Operation for a Lead, with its own
// timeout/retry policy managed by the caller, not the Provider itself.
type Provider interface {
	Operation() Operation
	Lookup(ctx context.Context, lead leadmodel.Lead) (Result, error)
}
