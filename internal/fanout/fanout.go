// Package fanout delivers one building-scoped event to every eligible device
// in that building.
//
// Pipeline: verify caller → authorize → resolve recipients → filter and
// dedupe → batch → dispatch to the push transport → aggregate.
// Nothing is retained between invocations.
package fanout

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultMaxBatchSize matches the Expo per-request message limit.
	DefaultMaxBatchSize = 100

	defaultSound = "default"
)

// --------------------------------------------------------------------------
// Category
// --------------------------------------------------------------------------

// Category is the notification type. It selects both the authorization rule
// and the preference flag consulted for each recipient.
type Category string

const (
	IssueCreated  Category = "issue_created"
	StatusChanged Category = "issue_status"
	Announcement  Category = "announcement"
)

// ParseCategory maps the wire value onto a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case IssueCreated, StatusChanged, Announcement:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrMalformedRequest, s)
}

// committeeOnly reports whether only committee members may trigger c.
func (c Category) committeeOnly() bool {
	return c == StatusChanged || c == Announcement
}

// --------------------------------------------------------------------------
// Roles and identities
// --------------------------------------------------------------------------

// Role is a member's role inside their building.
type Role string

const (
	RoleResident  Role = "resident"
	RoleCommittee Role = "committee"
)

// CallerIdentity is the invoking principal, resolved fresh on every call.
type CallerIdentity struct {
	UserID     string
	BuildingID string
	Role       Role
}

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// Request is one fan-out invocation. It is not modified after validation.
type Request struct {
	Category      Category
	BuildingID    string
	Title         string
	Body          string
	Payload       map[string]any
	ExcludeUserID string // empty = nobody excluded
}

// Validate checks the required fields.
func (r Request) Validate() error {
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	if r.BuildingID == "" || r.Title == "" || r.Body == "" {
		return fmt.Errorf("%w: missing required fields", ErrMalformedRequest)
	}
	return nil
}

// --------------------------------------------------------------------------
// Recipients
// --------------------------------------------------------------------------

// Preferences are a member's per-category opt-ins, already resolved against
// the fail-open default.
type Preferences struct {
	IssuesEnabled        bool
	AnnouncementsEnabled bool
	StatusUpdatesEnabled bool
}

// DefaultPreferences applies when a member has no settings record.
var DefaultPreferences = Preferences{
	IssuesEnabled:        true,
	AnnouncementsEnabled: true,
	StatusUpdatesEnabled: true,
}

// ResolvePreferences builds Preferences from nullable settings columns.
// A nil column (or a missing settings row) counts as enabled.
func ResolvePreferences(issues, announcements, statusUpdates *bool) Preferences {
	p := DefaultPreferences
	if issues != nil {
		p.IssuesEnabled = *issues
	}
	if announcements != nil {
		p.AnnouncementsEnabled = *announcements
	}
	if statusUpdates != nil {
		p.StatusUpdatesEnabled = *statusUpdates
	}
	return p
}

// Enabled reports whether the member opted in to c.
func (p Preferences) Enabled(c Category) bool {
	switch c {
	case IssueCreated:
		return p.IssuesEnabled
	case StatusChanged:
		return p.StatusUpdatesEnabled
	default:
		return p.AnnouncementsEnabled
	}
}

// RecipientRow is one (member, device token) pair in a building.
type RecipientRow struct {
	UserID      string
	DeviceToken string
	Preferences Preferences
}

// --------------------------------------------------------------------------
// Transport messages and results
// --------------------------------------------------------------------------

// Message is a single per-device push message in the Expo wire shape.
type Message struct {
	To    string         `json:"to"`
	Sound string         `json:"sound"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// Outcome is the upstream result of one batch. HTTPStatus is 0 when the
// request never produced a response.
type Outcome struct {
	BatchIndex int    `json:"batch"`
	Recipients int    `json:"recipients"`
	HTTPStatus int    `json:"status"`
	Body       string `json:"body"`
	Error      string `json:"error,omitempty"`
}

// Succeeded reports whether the upstream accepted the batch.
func (o Outcome) Succeeded() bool {
	return o.Error == "" && o.HTTPStatus >= 200 && o.HTTPStatus < 300
}

// Summary is the only value returned to the caller. Accepted means the
// invocation ran to completion, not that every device was reached.
type Summary struct {
	Accepted       bool      `json:"ok"`
	RecipientsSent int       `json:"sent"`
	BatchCount     int       `json:"batches"`
	Results        []Outcome `json:"results"`
	Incomplete     bool      `json:"incomplete,omitempty"`
}

// FailedBatches counts outcomes that did not succeed.
func (s Summary) FailedBatches() int {
	n := 0
	for _, o := range s.Results {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// Plan is the resolved, filtered and batched recipient set for a request.
type Plan struct {
	Resolved int // rows returned by the resolver
	Batches  [][]string
}

// Tokens returns the number of distinct tokens across all batches.
func (p Plan) Tokens() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b)
	}
	return n
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	MaxBatchSize    int
	Concurrency     int           // batches in flight; 1 = sequential
	DispatchTimeout time.Duration // 0 = bounded only by the caller's context
}

func (o Options) withDefaults() Options {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}
