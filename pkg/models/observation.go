package models

// Observation is a record observation as persisted, with its timestamp
// resolved. It is what gets mirrored to the archive.
type Observation struct {
	ProjectName     string
	ServiceName     string
	RecordName      string
	GroupBy         string
	Timestamp       Timestamp
	ExecutionTimeUs uint64
	Failed          bool
}
