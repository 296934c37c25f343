package server

// Request payloads. Responses reuse the domain structs, which carry the
// JSON and schema tags.

type CreateProjectRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"site_engineer,client,project_manager,admin,super_admin"`
}

type CreateMilestoneRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Order       int     `json:"order,omitempty"`
}

type UpdateMilestoneRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type CreateItemRequest struct {
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	Order           int     `json:"order,omitempty"`
	IsRequired      *bool   `json:"is_required,omitempty"`
	IsPhotoRequired *bool   `json:"is_photo_required,omitempty"`
}

type UpdateItemRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Order           *int    `json:"order,omitempty"`
	IsRequired      *bool   `json:"is_required,omitempty"`
	IsPhotoRequired *bool   `json:"is_photo_required,omitempty"`
}

type ResponseRequest struct {
	ChecklistItemID string  `json:"checklist_item_id"`
	Result          string  `json:"result" enum:"pass,fail,na"`
	Remark          *string `json:"remark,omitempty"`
	MediaID         *string `json:"media_id,omitempty"`
}

type CreateInspectionRequest struct {
	MilestoneID string            `json:"milestone_id"`
	Status      string            `json:"status,omitempty" enum:"draft,submitted"`
	Responses   []ResponseRequest `json:"responses"`
}

type RegisterMediaRequest struct {
	ID   *string `json:"id,omitempty"`
	Kind string  `json:"kind"`
	URL  string  `json:"url,omitempty"`
}
