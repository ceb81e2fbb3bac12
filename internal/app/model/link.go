package model

// Link maps a short identifier to its destination.
type Link struct {
	ID        string `json:"id" gorm:"column:id;primaryKey"`
	TargetURL string `json:"targetUrl" gorm:"column:target_url;type:text;not null"`
}

func (Link) TableName() string {
	return "links"
}

// LinkTarget is the body accepted by create and update.
type LinkTarget struct {
	TargetURL string `json:"targetUrl" validate:"required,url"`
}
