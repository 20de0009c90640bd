// Package model defines the shared data types that flow through the
// scrape, match, decide, and execute pipeline (spec §3).
package model

import "time"

// Scope identifies whether a DocumentType applies to the coordinated
// company itself or to one of its workers.
type Scope string

const (
	ScopeCompany Scope = "company"
	ScopeWorker  Scope = "worker"
)

// ValidityStartMode controls how the Validity Calculator picks a base date.
type ValidityStartMode string

const (
	ValidityStartIssueDate ValidityStartMode = "issue_date"
	ValidityStartManual    ValidityStartMode = "manual"
)

// PolicyMode is the renewal shape of a document type's validity.
type PolicyMode string

const (
	PolicyMonthly       PolicyMode = "monthly"
	PolicyAnnual        PolicyMode = "annual"
	PolicyFixedEndDate  PolicyMode = "fixed_end_date"
)

// MonthSource controls which date a monthly policy derives its period from.
type MonthSource string

const (
	MonthSourceNameDate  MonthSource = "name_date"
	MonthSourceIssueDate MonthSource = "issue_date"
	MonthSourcePeriodKey MonthSource = "period_key"
)

// NMonths is the optional renewal cadence override. N>1 makes a type a
// "renewal" type rather than a periodic-submission type (spec §3).
type NMonths struct {
	N int `json:"n"`
}

// ValidityPolicy describes how a DocumentType's documents age out.
type ValidityPolicy struct {
	Mode         PolicyMode  `json:"mode"`
	NMonths      *NMonths    `json:"n_months,omitempty"`
	AnnualMonths int         `json:"annual_months,omitempty"` // default 12 when Mode==annual
	MonthSource  MonthSource `json:"month_source,omitempty"`
	GraceDays    int         `json:"grace_days,omitempty"`
}

// IsRenewal reports whether this policy's type is a renewal type
// (n_months.n > 1) rather than a periodic-submission type (spec §3, §4.1).
func (p ValidityPolicy) IsRenewal() bool {
	return p.NMonths != nil && p.NMonths.N > 1
}

// IsPeriodicSubmission implements the §4.1 predicate used by the
// "missing periods" planner: monthly with n<=1, or annual with no
// n_months override.
func (p ValidityPolicy) IsPeriodicSubmission() bool {
	if p.NMonths != nil && p.NMonths.N > 1 {
		return false
	}
	switch p.Mode {
	case PolicyMonthly:
		return p.NMonths == nil || p.NMonths.N <= 1
	case PolicyAnnual:
		return p.NMonths == nil
	default:
		return false
	}
}

// DocumentType is the identity and rule set for a class of compliance
// document (spec §3).
type DocumentType struct {
	TypeID             string            `json:"type_id"`
	Name               string            `json:"name"`
	Scope              Scope             `json:"scope"`
	PlatformAliases    []string          `json:"platform_aliases"`
	RequiredFields     []string          `json:"required_fields,omitempty"`
	IssueDateRequired  bool              `json:"issue_date_required"`
	ValidityStartMode  ValidityStartMode `json:"validity_start_mode"`
	ValidityPolicy     ValidityPolicy    `json:"validity_policy"`
}

// WorkflowStatus is the human review state of a repository document.
type WorkflowStatus string

const (
	StatusDraft         WorkflowStatus = "draft"
	StatusReviewed       WorkflowStatus = "reviewed"
	StatusReadyToSubmit  WorkflowStatus = "ready_to_submit"
	StatusSubmitted      WorkflowStatus = "submitted"
)

// Extracted holds the dates the repository extracted from a document,
// either via upload metadata or filename/date heuristics.
type Extracted struct {
	IssueDate          *time.Time `json:"issue_date,omitempty"`
	ValidityStartDate  *time.Time `json:"validity_start_date,omitempty"`
}

// ValidityOverride lets a human pin an explicit end date, short-circuiting
// the calculator's end-date derivation (spec §4.1 end-date rule 1).
type ValidityOverride struct {
	ValidTo *time.Time `json:"valid_to,omitempty"`
}

// Document is a stored file in the local repository (spec §3).
type Document struct {
	DocID             string           `json:"doc_id"`
	TypeID            string           `json:"type_id"`
	CompanyKey        string           `json:"company_key,omitempty"`
	PersonKey         string           `json:"person_key,omitempty"`
	PeriodKey         string           `json:"period_key,omitempty"` // "YYYY-MM" or "YYYY"
	Extracted         Extracted        `json:"extracted"`
	IssuedAt          *time.Time       `json:"issued_at,omitempty"`
	StoredPath        string           `json:"stored_path"`
	Status            WorkflowStatus   `json:"status"`
	ValidityOverride  *ValidityOverride `json:"validity_override,omitempty"`
}

// PendingRequirement is one row scraped from the coordinator portal's
// pending-documents grid (spec §3).
type PendingRequirement struct {
	TipoDoc          string `json:"tipo_doc"`
	Elemento         string `json:"elemento"`
	Empresa          string `json:"empresa"`
	Estado           string `json:"estado,omitempty"`
	Origen           string `json:"origen,omitempty"`
	FechaSolicitud   string `json:"fecha_solicitud,omitempty"`
	Inicio           string `json:"inicio,omitempty"`
	Fin              string `json:"fin,omitempty"`

	// PersonKey/CompanyKey are normalized subject identifiers derived
	// from Elemento/Empresa for matcher subject filtering.
	PersonKey  string `json:"person_key,omitempty"`
	CompanyKey string `json:"company_key,omitempty"`

	PendingItemKey  string `json:"pending_item_key"`
	RawRowSignature string `json:"raw_row_signature"`
}

// Decision is the outcome a plan item is assigned.
type Decision string

const (
	DecisionAutoUpload      Decision = "AUTO_UPLOAD"
	DecisionReviewRequired  Decision = "REVIEW_REQUIRED"
	DecisionNoMatch         Decision = "NO_MATCH"
	DecisionDoNotUpload     Decision = "DO_NOT_UPLOAD"
)

// PlanItem is one line of a frozen submission plan (spec §3).
type PlanItem struct {
	ItemID            string              `json:"item_id"`
	PendingRef        PendingRequirement  `json:"pending_ref"`
	MatchedDoc        *Document           `json:"matched_doc"`
	MatchedRule       string              `json:"matched_rule,omitempty"`
	Confidence        float64             `json:"confidence"`
	Decision          Decision            `json:"decision"`
	PrimaryReasonCode string              `json:"primary_reason_code"`
	HumanHint         string              `json:"human_hint,omitempty"`
	BlockingIssues    []string            `json:"blocking_issues,omitempty"`
}

// Plan is the frozen, checksummed output of the Plan Builder (spec §3).
type Plan struct {
	PlanID string     `json:"plan_id"` // equals run_id of the read-only scrape
	Items  []PlanItem `json:"items"`
}

// PlanMeta is the sidecar metadata persisted alongside plan.json.
type PlanMeta struct {
	PlanID       string    `json:"plan_id"`
	Checksum     string    `json:"checksum"`
	ConfirmToken string    `json:"confirm_token"`
	IssuedAt     time.Time `json:"issued_at"`
	TTLSeconds   int       `json:"ttl_seconds"`
}

// PackAction is a human override action within a DecisionPack.
type PackAction string

const (
	ActionMarkAsMatch PackAction = "MARK_AS_MATCH"
	ActionForceUpload PackAction = "FORCE_UPLOAD"
	ActionSkip        PackAction = "SKIP"
)

// PackDecision is one override line within a DecisionPack (spec §3).
type PackDecision struct {
	ItemID         string     `json:"item_id"`
	Action         PackAction `json:"action"`
	ChosenLocalDocID string   `json:"chosen_local_doc_id,omitempty"`
	ChosenFilePath string     `json:"chosen_file_path,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// DecisionPack is a set of human overrides applied as an overlay onto a
// frozen plan (spec §3, §4.10).
type DecisionPack struct {
	DecisionPackID string         `json:"decision_pack_id"`
	PlanID         string         `json:"plan_id"`
	Decisions      []PackDecision `json:"decisions"`
	DecidedBy      string         `json:"decided_by,omitempty"`
	DecidedAt      time.Time      `json:"decided_at,omitempty"`
}

// PresetScope is the strict-match scope for a Preset (spec §3).
type PresetScope struct {
	Platform   *string `json:"platform,omitempty"`
	TypeID     string  `json:"type_id"`
	SubjectKey *string `json:"subject_key,omitempty"`
	PeriodKey  *string `json:"period_key,omitempty"`
}

// Preset is a scoped decision template a user can apply in batch (spec §3).
type Preset struct {
	PresetID  string            `json:"preset_id"`
	Scope     PresetScope       `json:"scope"`
	Action    PackAction        `json:"action"`
	Defaults  map[string]string `json:"defaults,omitempty"`
	Enabled   bool              `json:"enabled"`
	CreatedAt time.Time         `json:"created_at"`
}

// RunError is one classified error recorded in a RunSummary.
type RunError struct {
	Phase       string `json:"phase"`
	ErrorCode   string `json:"error_code"`
	Transient   bool   `json:"transient"`
	Attempt     int    `json:"attempt"`
	DetailsPath string `json:"details_path,omitempty"`
}

// RunCounts is the scrape/match tally carried by a RunSummary.
type RunCounts struct {
	PendingTotal    int `json:"pending_total"`
	AutoUpload      int `json:"auto_upload"`
	ReviewRequired  int `json:"review_required"`
	NoMatch         int `json:"no_match"`
}

// ExecutionCounts is the execution tally carried by a RunSummary.
type ExecutionCounts struct {
	Attempted int `json:"attempted"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// RunSummary is the terminal artifact of an execution (spec §3, §4.13).
type RunSummary struct {
	RunID                string            `json:"run_id"`
	OwnCompany           string            `json:"own_company"`
	Platform             string            `json:"platform"`
	CoordinatedCompany   string            `json:"coordinated_company"`
	PersonKey            string            `json:"person_key,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	FinishedAt           time.Time         `json:"finished_at"`
	Counts               RunCounts         `json:"counts"`
	Execution            ExecutionCounts   `json:"execution"`
	Errors               []RunError        `json:"errors"`
	EvidenceRoot         string            `json:"evidence_root"`
	EvidencePaths        map[string]string `json:"evidence_paths"`
	Cancelled            bool              `json:"cancelled,omitempty"`
}

// Cadence is the repeat shape of a Schedule.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Schedule is a recurring execute-plan trigger for one coordination
// triplet (spec §3, §4.14).
type Schedule struct {
	ScheduleID         string    `json:"schedule_id"`
	Enabled            bool      `json:"enabled"`
	PlanID             string    `json:"plan_id"`
	Cadence            Cadence   `json:"cadence"`
	AtTime             string    `json:"at_time"` // "HH:MM"
	Weekday            int       `json:"weekday,omitempty"` // 0..6, weekly only
	OwnCompany         string    `json:"own_company"`
	Platform           string    `json:"platform"`
	CoordinatedCompany string    `json:"coordinated_company"`
	LastRunID          string    `json:"last_run_id,omitempty"`
	LastRunAt          time.Time `json:"last_run_at,omitempty"`
	LastStatus         string    `json:"last_status,omitempty"`
}

// CoordinationContext identifies the (own-company, platform,
// coordinated-company) triplet a request operates within.
type CoordinationContext struct {
	OwnCompany         string
	Platform           string
	CoordinatedCompany string
}
