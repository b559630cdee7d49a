package planner

// Status is the lifecycle state of a single plan item.
type Status string

const (
	StatusMigrate Status = "migrate"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Stage is the furthest point an item reached in the apply pipeline.
type Stage string

const (
	StageInitial  Stage = "initial"
	StageCopy     Stage = "s3:copy"
	StageTransfer Stage = "ddb:transfer"
	StageDelete   Stage = "s3:delete"
	StageFinished Stage = "finished"
)

// Identity is a directory user resolved to an organization.
type Identity struct {
	StableID       string `json:"stableId"`
	DisplayName    string `json:"displayName"`
	OrganizationID string `json:"organizationId"`
}

// Artifact is a document record as seen during planning.
type Artifact struct {
	ArtifactID   string `json:"artifactId"`
	CurrentOwner string `json:"currentOwner"`
}

// ArtifactSet is the planning input fetched from the document store.
type ArtifactSet struct {
	TableName string
	Artifacts []Artifact
}

// FileSet is the planning input fetched from the object store.
type FileSet struct {
	BucketName string
	Keys       []string
}

// Transfer maps a source value to its destination.
type Transfer struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Item is the unit of work in a migration plan.
type Item struct {
	ArtifactID    string     `json:"artifactId"`
	Status        Status     `json:"status"`
	Stage         Stage      `json:"stage"`
	Reason        string     `json:"reason,omitempty"`
	OwnerTransfer Transfer   `json:"ownerTransfer"`
	Files         []Transfer `json:"files"`
}

// MigrateSection lists the items that will be migrated.
type MigrateSection struct {
	Count int    `json:"count"`
	Plans []Item `json:"plans"`
}

// OrphanedSection lists artifacts whose owner matched no identity.
type OrphanedSection struct {
	Count       int      `json:"count"`
	ArtifactIDs []string `json:"artifactIds"`
}

// Plan is the durable migration plan document.
type Plan struct {
	Total      int             `json:"total"`
	TableName  string          `json:"tableName"`
	BucketName string          `json:"bucketName"`
	Migrate    MigrateSection  `json:"migrate"`
	Orphaned   OrphanedSection `json:"orphaned"`
}

// Pending returns the items still in the migrate state, in plan order.
func (p *Plan) Pending() []Item {
	var pending []Item
	for _, item := range p.Migrate.Plans {
		if item.Status == StatusMigrate {
			pending = append(pending, item)
		}
	}
	return pending
}

// Clone returns a deep copy so callers can derive a run output without
// touching the template.
func (p *Plan) Clone() *Plan {
	out := *p
	out.Migrate.Plans = cloneSlice(p.Migrate.Plans)
	for i := range out.Migrate.Plans {
		out.Migrate.Plans[i].Files = cloneSlice(out.Migrate.Plans[i].Files)
	}
	out.Orphaned.ArtifactIDs = cloneSlice(p.Orphaned.ArtifactIDs)
	return &out
}

// cloneSlice copies s, keeping nil and empty distinct so the encoded plan
// does not change shape.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
