// Package exporter drives the external CRM (spec.md §4.8): resolves
// Company/Contact/Deal by find-or-create, maps internal fields and
// status onto CRM properties/stages, and attaches a summary Note.
package exporter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"leadpipe/internal/exporter/crm"
	"leadpipe/internal/leadmodel"
)

// Result is what export(Lead) returns per spec §4.8's contract.
type Result struct {
	CompanyID string
	ContactIDs []string
	DealID    string
	Created   bool
}

// Config carries the externalized mapping tables (spec §4.8 items 4-5).
// The batch schedule and window are set through BatchConfig.
type Config struct {
	Fields FieldMapping
	Stages StatusStageMapping
}

func (c *Config) applyDefaults() {
	if (c.Fields == FieldMapping{}) {
		c.Fields = defaultFieldMapping()
	}
	if c.Stages == nil {
		c.Stages = defaultStatusStageMapping()
	}
}

// Exporter runs the find-or-create algorithm of spec §4.8 against an
// injected crm.Client.
type Exporter struct {
	client crm.Client
	cfg    Config

	// companyLocks serializes concurrent resolution for the same
	// (name, domain) key so a Company is never created twice
	// concurrently (spec §4.8 item 1).
	companyLocks sync.Map // string -> *sync.Mutex
}

func New(client crm.Client, cfg Config) *Exporter {
	cfg.applyDefaults()
	return &Exporter{client: client, cfg: cfg}
}

// Export runs the CRM find-or-create algorithm for a single Lead.
// Partial failure (e.g. a RateLimitError mid-algorithm) is returned to
// the caller uninterpreted; the orchestrator's export loop is
// responsible for I4 (leaving the Lead at `enriched` with an
// incremented attempt counter rather than advancing it).
func (e *Exporter) Export(ctx context.Context, lead leadmodel.Lead) (Result, error) {
	companyID, created, err := e.resolveCompany(ctx, lead)
	if err != nil {
		return Result{}, fmt.Errorf("exporter: resolve company: %w", err)
	}

	contactIDs, err := e.resolveContacts(ctx, lead, companyID)
	if err != nil {
		return Result{}, fmt.Errorf("exporter: resolve contacts: %w", err)
	}

	dealID, dealCreated, err := e.resolveDeal(ctx, lead, companyID, contactIDs)
	if err != nil {
		return Result{}, fmt.Errorf("exporter: resolve deal: %w", err)
	}

	if err := e.client.AddNote(ctx, dealID, summaryNote(lead)); err != nil {
		return Result{}, fmt.Errorf("exporter: add note: %w", err)
	}

	return Result{CompanyID: companyID, ContactIDs: contactIDs, DealID: dealID, Created: created || dealCreated}, nil
}

// resolveCompany implements spec §4.8 item 1, guarded by a per-(name,domain)
// lock so two concurrent Exports for the same company never both create it.
func (e *Exporter) resolveCompany(ctx context.Context, lead leadmodel.Lead) (string, bool, error) {
	if lead.Company == nil {
		return "", false, nil
	}
	name := strings.ToLower(strings.TrimSpace(lead.Company.Name))
	domain := strings.ToLower(strings.TrimSpace(lead.Company.Domain))
	key := name + "|" + domain
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.client.FindCompany(ctx, name, domain)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	created, err := e.client.CreateCompany(ctx, crm.Company{Name: lead.Company.Name, Domain: lead.Company.Domain})
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

// resolveContacts implements spec §4.8 item 2: resolve each extracted
// Contact by email, else by (name, company), creating on miss.
func (e *Exporter) resolveContacts(ctx context.Context, lead leadmodel.Lead, companyID string) ([]string, error) {
	ids := make([]string, 0, len(lead.Contacts))
	for _, contact := range lead.Contacts {
		var existing *crm.Contact
		var err error
		if contact.Email != "" {
			existing, err = e.client.FindContactByEmail(ctx, contact.Email)
		} else {
			existing, err = e.client.FindContactByNameAndCompany(ctx, contact.Name, companyID)
		}
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}

		created, err := e.client.CreateContact(ctx, crm.Contact{
			CompanyID: companyID, Name: contact.Name, Email: contact.Email, Phone: contact.Phone, Role: contact.Role,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, created.ID)
	}
	return ids, nil
}

// resolveDeal implements spec §4.8 items 3-5: find by lead_id, patch
// mapped fields on hit, else create with the mapped stage.
func (e *Exporter) resolveDeal(ctx context.Context, lead leadmodel.Lead, companyID string, contactIDs []string) (string, bool, error) {
	props := e.cfg.Fields.propertiesFor(lead)
	stage := e.cfg.Stages.stageFor(lead.Status)

	existing, err := e.client.FindDealByLeadID(ctx, lead.LeadID)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		existing.CompanyID = companyID
		existing.ContactIDs = contactIDs
		existing.Stage = stage
		existing.Properties = props
		updated, err := e.client.UpdateDeal(ctx, *existing)
		if err != nil {
			return "", false, err
		}
		return updated.ID, false, nil
	}

	created, err := e.client.CreateDeal(ctx, crm.Deal{
		CompanyID: companyID, ContactIDs: contactIDs, LeadID: lead.LeadID, Stage: stage, Properties: props,
	})
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func (e *Exporter) lockFor(key string) *sync.Mutex {
	v, _ := e.companyLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// summaryNote builds the structured Note attached to the Deal (spec §4.8
// item 6: "source URL, confidence, quality score, classification
// rationale").
func summaryNote(lead leadmodel.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", lead.SourceURL)
	fmt.Fprintf(&b, "Confidence: %s\n", formatScore(lead.ConfidenceScore))
	fmt.Fprintf(&b, "Quality: %s\n", formatScore(lead.QualityScore))
	fmt.Fprintf(&b, "Sector: %s | Stage: %s | Priority: %s\n", lead.MarketSector, lead.ProjectStage, lead.Priority)
	if lead.Notes != "" {
		fmt.Fprintf(&b, "Classification notes: %s\n", lead.Notes)
	}
	fmt.Fprintf(&b, "Exported at: %s", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
