// Package crm defines the external CRM contract the Exporter drives
// (spec.md §4.8): three object kinds with associations — Company,
// Contact, Deal (with Notes) — each resolved by find-or-create.
package crm

import (
	"context"
	"fmt"
	"time"
)

// Company is the CRM's company/account record.
type Company struct {
	ID     string
	Name   string
	Domain string
}

// Contact is the CRM's person record, associated to a Company.
type Contact struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	Phone     string
	Role      string
}

// Deal is the CRM's opportunity/pipeline-stage record, keyed back to the
// originating Lead via a custom property (spec §4.8 item 3: "Search by
// the Lead's lead_id persisted as a custom property on the Deal").
type Deal struct {
	ID          string
	CompanyID   string
	ContactIDs  []string
	LeadID      string
	Stage       string
	Properties  map[string]string
}

// RateLimitError signals the CRM asked the caller to back off (HTTP 429).
// The orchestrator's export loop detects it with errors.As, sleeps for
// RetryAfter (or a default), then continues with the next Lead in the
// batch (spec §4.8: "backs off with the CRM's Retry-After or a default
// (10s), and the batch continues with the next Lead").
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("crm: rate limited, retry after %s", e.RetryAfter)
}

// Client is the CRM contract the Exporter drives. Implementations own
// their own HTTP/auth details; the Exporter never talks to the wire
// directly.
type Client interface {
	FindCompany(ctx context.Context, name, domain string) (*Company, error)
	CreateCompany(ctx context.Context, c Company) (*Company, error)

	FindContactByEmail(ctx context.Context, email string) (*Contact, error)
	FindContactByNameAndCompany(ctx context.Context, name, companyID string) (*Contact, error)
	CreateContact(ctx context.Context, c Contact) (*Contact, error)

	FindDealByLeadID(ctx context.Context, leadID string) (*Deal, error)
	CreateDeal(ctx context.Context, d Deal) (*Deal, error)
	UpdateDeal(ctx context.Context, d Deal) (*Deal, error)

	AddNote(ctx context.Context, dealID, body string) error
}
