package model

// DefaultSettingsID is the id of the singleton settings row.
const DefaultSettingsID = "DEFAULT_SETTINGS"

// Settings holds the hex encoded SHA3-256 digest of the accepted API key.
type Settings struct {
	ID              string `gorm:"column:id;primaryKey"`
	EncryptedAPIKey string `gorm:"column:encrypted_api_key;not null"`
}

func (Settings) TableName() string {
	return "settings"
}
