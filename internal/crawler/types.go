package crawler

import (
	"time"
)

// DomainStatus represents the crawl lifecycle state of a domain.
type DomainStatus string

// Domain status values persisted in the domain store.
const (
	DomainStatusPending    DomainStatus = "pending"
	DomainStatusInProgress DomainStatus = "in_progress"
	DomainStatusCompleted  DomainStatus = "completed"
	DomainStatusFailed     DomainStatus = "failed"
	DomainStatusPaused     DomainStatus = "paused"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Role classifies the section of a site a keyword was found in.
type Role string

// Section roles.
const (
	RoleMenu           Role = "menu"
	RoleServiceListing Role = "service_listing"
	RoleServiceDetail  Role = "service_detail"
)

// IsService reports whether the role came from a service page.
func (r Role) IsService() bool {
	return r == RoleServiceListing || r == RoleServiceDetail
}

// ExtractionMethod identifies how a service keyword was pulled from a page.
type ExtractionMethod string

// Extraction methods, ordered from most to least reliable.
const (
	MethodJSONLD      ExtractionMethod = "json_ld"
	MethodH1          ExtractionMethod = "h1"
	MethodTitle       ExtractionMethod = "title"
	MethodMeta        ExtractionMethod = "meta"
	MethodServiceCard ExtractionMethod = "service_card"
)

// MenuConfidence is the score recorded for menu observations, which carry no
// per-item provenance.
const MenuConfidence = 1.0

// Methods lists every extraction method in precedence order.
func Methods() []ExtractionMethod {
	return []ExtractionMethod{MethodJSONLD, MethodH1, MethodTitle, MethodMeta, MethodServiceCard}
}

// Confidence returns the fixed score attached to candidates from this method.
func (m ExtractionMethod) Confidence() float64 {
	switch m {
	case MethodJSONLD:
		return 1.0
	case MethodH1:
		return 0.95
	case MethodTitle:
		return 0.90
	case MethodMeta:
		return 0.85
	case MethodServiceCard:
		return 0.80
	default:
		return 0
	}
}

// Rank orders methods by precedence; lower ranks win ties.
func (m ExtractionMethod) Rank() int {
	for i, candidate := range Methods() {
		if candidate == m {
			return i
		}
	}
	return len(Methods())
}

// Domain is a registrable host under crawl.
type Domain struct {
	ID            int64        `json:"id"`
	Host          string       `json:"domain"`
	Status        DomainStatus `json:"crawl_status"`
	IsActive      bool         `json:"is_active"`
	LastCrawled   *time.Time   `json:"last_crawled,omitempty"`
	NextCrawlDate *time.Time   `json:"next_crawl_date,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HomepageURL returns the https URL of the domain root.
func (d Domain) HomepageURL() string {
	return "https://" + d.Host + "/"
}

// DomainUpdate describes a status change persisted for a domain.
type DomainUpdate struct {
	DomainID      int64
	Status        DomainStatus
	UpdatedAt     time.Time
	LastCrawled   *time.Time
	NextCrawlDate *time.Time
}

// CrawlJob is one execution attempt against a domain.
type CrawlJob struct {
	ID               string     `json:"job_id"`
	DomainID         int64      `json:"domain_id"`
	Status           JobStatus  `json:"status"`
	PagesCrawled     int        `json:"pages_crawled"`
	PagesFailed      int        `json:"pages_failed"`
	NewKeywordsFound int        `json:"new_keywords_found"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Candidate is an extracted, not yet validated keyword with provenance.
type Candidate struct {
	Text       string
	SourceURL  string
	Method     ExtractionMethod
	Confidence float64
	Role       Role
}

// KeywordMaster is the global deduplicated keyword entry.
type KeywordMaster struct {
	ID                 int64     `json:"id"`
	Keyword            string    `json:"keyword"`
	Normalized         string    `json:"normalized_keyword"`
	UniqueDomainsCount int64     `json:"unique_domains_count"`
	TotalOccurrences   int64     `json:"total_occurrences"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
}

// LinkKey identifies a DomainKeywordLink.
type LinkKey struct {
	DomainID  int64
	KeywordID int64
	Role      Role
}

// DomainKeywordLink associates a domain with a keyword for one section role.
// Provenance fields are only populated for service roles.
type DomainKeywordLink struct {
	DomainID        int64
	KeywordID       int64
	Role            Role
	PageCount       int64
	TotalFrequency  int64
	AvgScore        float64
	MaxScore        float64
	SourceURL       string
	Method          ExtractionMethod
	ConfidenceScore float64
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Key returns the uniqueness key of the link.
func (l DomainKeywordLink) Key() LinkKey {
	return LinkKey{DomainID: l.DomainID, KeywordID: l.KeywordID, Role: l.Role}
}

// Page is a fetched document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Statistics summarizes crawl progress across all domains.
type Statistics struct {
	Pending       int64 `json:"pending"`
	InProgress    int64 `json:"in_progress"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Paused        int64 `json:"paused"`
	Total         int64 `json:"total"`
	TotalKeywords int64 `json:"total_keywords"`
	ActiveJobs    int64 `json:"active_jobs"`
}

// JobSummary is a recent job joined with its domain host.
type JobSummary struct {
	CrawlJob
	Host string `json:"domain"`
}
