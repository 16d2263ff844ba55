package speech

import "time"

// Run status values stored on RunRecord.
const (
	RunStatusDone    = "done"
	RunStatusAborted = "aborted"
)

// RunRecord is the persisted metadata of one pipeline invocation. It never holds
// the topic, title or speech text.
type RunRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	Status         string `gorm:"size:32;not null;index"`
	ErrorKind      string `gorm:"size:64"`
	FailedStage    string `gorm:"size:16"`
	Policy         string `gorm:"size:16;not null"`
	TitleBackend   string `gorm:"size:255;not null"`
	SpeechBackend  string `gorm:"size:255;not null"`
	TitleFallback  bool   `gorm:"not null;default:false"`
	SpeechFallback bool   `gorm:"not null;default:false"`
	DurationMS     int64  `gorm:"not null"`
	CreatedAt      time.Time
}

// TableName defines the table name for RunRecord.
func (RunRecord) TableName() string {
	return "speech_runs"
}
