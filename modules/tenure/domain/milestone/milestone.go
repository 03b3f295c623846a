// Package milestone holds the simple non-interval records (milestones and
// aspirations) that change execution creates or updates directly.
package milestone

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMilestone  Kind = "milestone"
	KindAspiration Kind = "aspiration"
)

func (k Kind) Valid() bool {
	return k == KindMilestone || k == KindAspiration
}

const (
	StatusOpen     = "open"
	StatusAchieved = "achieved"
	StatusDropped  = "dropped"
)

type Milestone struct {
	tenantID  uuid.UUID
	id        uuid.UUID
	subjectID uuid.UUID
	kind      Kind
	title     string
	body      string
	status    string
	createdAt time.Time
	updatedAt time.Time
}

func New(tenantID, id, subjectID uuid.UUID, kind Kind, title, body, status string) Milestone {
	if status == "" {
		status = StatusOpen
	}
	return Milestone{
		tenantID:  tenantID,
		id:        id,
		subjectID: subjectID,
		kind:      kind,
		title:     title,
		body:      body,
		status:    status,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	id uuid.UUID,
	subjectID uuid.UUID,
	kind Kind,
	title string,
	body string,
	status string,
	createdAt time.Time,
	updatedAt time.Time,
) Milestone {
	return Milestone{
		tenantID:  tenantID,
		id:        id,
		subjectID: subjectID,
		kind:      kind,
		title:     title,
		body:      body,
		status:    status,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (m Milestone) TenantID() uuid.UUID  { return m.tenantID }
func (m Milestone) ID() uuid.UUID        { return m.id }
func (m Milestone) SubjectID() uuid.UUID { return m.subjectID }
func (m Milestone) Kind() Kind           { return m.kind }
func (m Milestone) Title() string        { return m.title }
func (m Milestone) Body() string         { return m.body }
func (m Milestone) Status() string       { return m.status }
func (m Milestone) CreatedAt() time.Time { return m.createdAt }
func (m Milestone) UpdatedAt() time.Time { return m.updatedAt }
