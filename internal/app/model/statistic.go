package model

import "time"

// LinkStatistic is one recorded redirect. Rows are append-only and duplicates are counted.
type LinkStatistic struct {
	ID         int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	LinkID     string    `json:"linkId" gorm:"column:link_id;not null;index"`
	Referer    *string   `json:"referer" gorm:"column:referer;type:text"`
	UserAgent  *string   `json:"userAgent" gorm:"column:user_agent;type:text"`
	ObservedAt time.Time `json:"observedAt" gorm:"column:observed_at;autoCreateTime"`
}

func (LinkStatistic) TableName() string {
	return "link_statistics"
}

// CountedLinkStatistics is one (user agent, referer) group of a link's statistics.
type CountedLinkStatistics struct {
	Amount    int64   `json:"amount" gorm:"column:amount"`
	UserAgent *string `json:"userAgent" gorm:"column:user_agent"`
	Referer   *string `json:"referer" gorm:"column:referer"`
}

const (
	StatisticsStreamName     = "LINK_STATISTICS"
	StatisticsStreamSubject  = "links.statistics"
	StatisticsConsumerName   = "statistics-writer"
	StatisticsStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
