package domain

type Project struct {
	// slug is the primary key
	Slug             string `json:"slug" bson:"_id"`
	Name             string `json:"name" bson:"name"`
	IsActive         bool   `json:"isActive" bson:"isActive"`
	CurrentReleaseId string `json:"currentReleaseId,omitempty" bson:"currentReleaseId,omitempty"`
	CreatedAt        int64  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt" bson:"updatedAt"`
}
