package domain

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role" enum:"site_engineer,client,project_manager,admin,super_admin"`
	AddedAt   string `json:"added_at" format:"date-time"`
}

// Milestone is one inspection checkpoint inside a project. Order is a
// display sort key, not globally unique.
type Milestone struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Order       int             `json:"order"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
	Items       []ChecklistItem `json:"items,omitempty"`
}

type ChecklistItem struct {
	ID              string `json:"id"`
	MilestoneID     string `json:"milestone_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Order           int    `json:"order"`
	IsRequired      bool   `json:"is_required"`
	IsPhotoRequired bool   `json:"is_photo_required"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

// Inspection records one engineer's attempt against a milestone's checklist.
// EngineerID is fixed at creation and never changes.
type Inspection struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id"`
	MilestoneID   string               `json:"milestone_id"`
	MilestoneName string               `json:"milestone_name,omitempty"`
	EngineerID    string               `json:"engineer_id"`
	Status        InspectionStatus     `json:"status" enum:"draft,submitted,reviewed"`
	ReviewerID    *string              `json:"reviewer_id,omitempty"`
	CreatedAt     string               `json:"created_at" format:"date-time"`
	SubmittedAt   *string              `json:"submitted_at,omitempty" format:"date-time"`
	ReviewedAt    *string              `json:"reviewed_at,omitempty" format:"date-time"`
	Responses     []InspectionResponse `json:"responses,omitempty"`
}

type InspectionResponse struct {
	ID              string         `json:"id"`
	InspectionID    string         `json:"inspection_id"`
	ChecklistItemID string         `json:"checklist_item_id"`
	Result          ResponseResult `json:"result" enum:"pass,fail,na"`
	Remark          string         `json:"remark,omitempty"`
	MediaID         *string        `json:"media_id,omitempty"`
	Item            *ChecklistItem `json:"item,omitempty"`
	Media           *Media         `json:"media,omitempty"`
}

// Media is a reference to an asset owned by the upload subsystem. This core
// never mutates or deletes the asset itself.
type Media struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	URL        string `json:"url,omitempty"`
	UploadedBy string `json:"uploaded_by,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// MediaKindInspectionEvidence is the only media kind an inspection response
// may reference.
const MediaKindInspectionEvidence = "inspection_evidence"

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// InspectionSummary is the compact, derived list-view projection. It is
// computed at read time and never persisted.
type InspectionSummary struct {
	ID            string           `json:"id"`
	MilestoneID   string           `json:"milestone_id"`
	MilestoneName string           `json:"milestone_name"`
	EngineerID    string           `json:"engineer_id"`
	Status        InspectionStatus `json:"status" enum:"draft,submitted,reviewed"`
	CreatedAt     string           `json:"created_at" format:"date-time"`
	SubmittedAt   *string          `json:"submitted_at,omitempty" format:"date-time"`
	PassCount     int              `json:"pass_count"`
	FailCount     int              `json:"fail_count"`
	NACount       int              `json:"na_count"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Actor is the authenticated caller identity every operation receives.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
