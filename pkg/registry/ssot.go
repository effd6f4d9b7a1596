package registry

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

// SSOTMode decides what happens when no template is active. Strict mode
// refuses to process; permissive mode bootstraps the built-in default
// template.
type SSOTMode string

const (
	SSOTStrict     SSOTMode = "strict"
	SSOTPermissive SSOTMode = "permissive"
)

// CodeSSOTViolation is the stable error code raised when strict mode finds
// no active templates.
const CodeSSOTViolation = "SSOT_VIOLATION"

// ErrSSOTViolation rejects processing in strict mode with no active
// templates.
var ErrSSOTViolation = &resiliency.CodedError{
	Code:    CodeSSOTViolation,
	Message: "no active templates and SSOT mode is strict",
}

// ResolveMode resolves the effective SSOT mode. Production and staging are
// always strict; a permissive override there is logged and ignored. An
// empty or unknown request resolves to strict.
func ResolveMode(ctx context.Context, environment, requested string, log *safelog.Logger) SSOTMode {
	forced := environment == "production" || environment == "staging"
	if forced {
		if SSOTMode(requested) == SSOTPermissive && log != nil {
			log.Warn(ctx, "permissive SSOT mode override ignored", map[string]any{
				"environment": environment, "requested": requested,
			})
		}
		return SSOTStrict
	}
	if SSOTMode(requested) == SSOTPermissive {
		return SSOTPermissive
	}
	return SSOTStrict
}

// EnsureTemplatesReady guarantees at least one active template exists
// before a document is processed. Strict mode fails with SSOT_VIOLATION;
// permissive mode installs and activates the default template on first
// use.
func (r *Registry) EnsureTemplatesReady(ctx context.Context) error {
	active, err := r.ActiveVersions(ctx)
	if err != nil {
		return fmt.Errorf("registry: list active versions: %w", err)
	}
	if len(active) > 0 {
		return nil
	}
	if r.mode == SSOTStrict {
		return ErrSSOTViolation
	}
	return r.installDefaultTemplate(ctx)
}

const (
	// DefaultTemplateSlug identifies the built-in fallback template.
	DefaultTemplateSlug    = "generic-job-sheet"
	defaultTemplateVersion = "1.0.0"

	serialNumberPattern = `^SN-\d{5}-[A-Z]{2}$`
	jobNumberPattern    = `^JOB-\d{6}$`
	clockTimePattern    = `^([01]\d|2[0-3]):[0-5]\d$`
)

// DefaultTemplateSpec is the built-in generic job sheet: the fields and
// ten validation rules every maintenance sheet is expected to carry.
func DefaultTemplateSpec() *contracts.TemplateSpec {
	return &contracts.TemplateSpec{
		Metadata: contracts.SpecMetadata{
			Name:         "Generic Job Sheet",
			Description:  "Built-in fallback template for unbranded maintenance job sheets",
			DocumentKind: "job_sheet",
		},
		Fields: []contracts.FieldSpec{
			{ID: "jobReference", Label: "Job Number", Type: contracts.FieldTypeString, Required: true,
				Aliases: []string{"Job No", "Job Ref", "Job Reference"}},
			{ID: "date", Label: "Date of Service", Type: contracts.FieldTypeDate, Required: true,
				Aliases: []string{"Date", "Service Date"}},
			{ID: "assetId", Label: "Asset ID", Type: contracts.FieldTypeString,
				Aliases: []string{"Asset", "Asset Number"}},
			{ID: "engineerSignOff", Label: "Engineer Signature", Type: contracts.FieldTypeString, Required: true,
				Aliases: []string{"Signature", "Signed By"}},
			{ID: "serialNumber", Label: "Serial Number", Type: contracts.FieldTypeString, Required: true,
				Aliases: []string{"Serial", "Serial No"}},
			{ID: "technician", Label: "Technician Name", Type: contracts.FieldTypeString, Required: true,
				Aliases: []string{"Technician", "Engineer Name"}},
			{ID: "workDescription", Label: "Work Description", Type: contracts.FieldTypeString,
				Aliases: []string{"Work Done", "Description"}},
			{ID: "partsUsed", Label: "Parts Used", Type: contracts.FieldTypeList,
				Aliases: []string{"Parts"}},
			{ID: "timeIn", Label: "Time In", Type: contracts.FieldTypeString},
			{ID: "timeOut", Label: "Time Out", Type: contracts.FieldTypeString},
			{ID: "customer", Label: "Customer", Type: contracts.FieldTypeString,
				Aliases: []string{"Customer Name", "Client"}},
		},
		Rules: []contracts.RuleSpec{
			{RuleID: "R-001", Field: "engineerSignOff", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityCritical, Enabled: true},
			{RuleID: "R-002", Field: "date", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityCritical, Enabled: true},
			{RuleID: "R-003", Field: "serialNumber", Type: contracts.RuleTypeFormat,
				Severity: contracts.RuleSeverityMajor, Pattern: serialNumberPattern, Enabled: true},
			{RuleID: "R-004", Field: "technician", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityMajor, Enabled: true},
			{RuleID: "R-005", Field: "workDescription", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityInfo, Enabled: true},
			{RuleID: "R-006", Field: "partsUsed", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityInfo, Enabled: true},
			{RuleID: "R-007", Field: "timeIn", Type: contracts.RuleTypeFormat,
				Severity: contracts.RuleSeverityMinor, Pattern: clockTimePattern, Enabled: true},
			{RuleID: "R-008", Field: "timeOut", Type: contracts.RuleTypeFormat,
				Severity: contracts.RuleSeverityMinor, Pattern: clockTimePattern, Enabled: true},
			{RuleID: "R-009", Field: "customer", Type: contracts.RuleTypeRequired,
				Severity: contracts.RuleSeverityMinor, Enabled: true},
			{RuleID: "R-010", Field: "jobReference", Type: contracts.RuleTypeFormat,
				Severity: contracts.RuleSeverityCritical, Pattern: jobNumberPattern, Enabled: true},
		},
	}
}

// DefaultSelectionConfig matches unbranded job sheets on generic
// maintenance vocabulary plus the job number form code.
func DefaultSelectionConfig() contracts.SelectionConfig {
	return contracts.SelectionConfig{
		RequiredTokensAny: []string{"job", "service", "maintenance", "work"},
		OptionalTokens: []contracts.WeightedToken{
			{Token: "sheet", Weight: 1},
			{Token: "engineer", Weight: 1},
			{Token: "technician", Weight: 1},
			{Token: "serial", Weight: 1},
			{Token: "parts", Weight: 1},
		},
		FormCodeRegex: `JOB-\d{6}`,
	}
}

// installDefaultTemplate bootstraps the built-in template and marks it
// active. Activation gates are skipped: the default ships with the binary
// and is trusted as-is.
func (r *Registry) installDefaultTemplate(ctx context.Context) error {
	t := &Template{
		TemplateID: "tpl-default",
		Slug:       DefaultTemplateSlug,
		Name:       "Generic Job Sheet",
		IsDefault:  true,
		CreatedAt:  r.now(),
	}
	if err := r.store.PutTemplate(ctx, t); err != nil {
		return fmt.Errorf("registry: install default template: %w", err)
	}
	activatedAt := r.now()
	tv := &TemplateVersion{
		VersionID:   "ver-default-" + defaultTemplateVersion,
		TemplateID:  t.TemplateID,
		Version:     defaultTemplateVersion,
		Status:      StatusActive,
		Spec:        DefaultTemplateSpec(),
		Selection:   DefaultSelectionConfig(),
		CreatedAt:   r.now(),
		ActivatedAt: &activatedAt,
	}
	if err := r.store.PutVersion(ctx, tv); err != nil {
		return fmt.Errorf("registry: install default version: %w", err)
	}
	r.log.Info(ctx, "default template installed", map[string]any{
		"slug": DefaultTemplateSlug, "version": defaultTemplateVersion,
	})
	return nil
}
