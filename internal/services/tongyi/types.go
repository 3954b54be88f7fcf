package tongyi

// Remote task statuses reported by the record listing endpoint.
const (
	StatusRunning     = 20
	StatusSucceeded   = 30
	StatusFailed      = 40
	StatusFailedRetry = 41
)

// TerminalFailure reports whether a status marks a job that will never
// complete and should be deleted remotely.
func TerminalFailure(status int) bool {
	return status == StatusFailed || status == StatusFailedRetry
}

// Task is one transcription job as reported by the remote folder listing.
type Task struct {
	// TaskID addresses the transcript and annotation result endpoints.
	TaskID string `json:"taskId"`
	// RecordID addresses the delete endpoint.
	RecordID string `json:"recordId"`
	// Title is the display name the job was submitted under.
	Title  string `json:"title"`
	Status int    `json:"status"`
}

// SubmitTag carries the per-file submission options.
type SubmitTag struct {
	FileType         string `json:"fileType"`
	ShowName         string `json:"showName"`
	Lang             string `json:"lang"`
	RoleSplitNum     int    `json:"roleSplitNum"`
	TranslateSwitch  int    `json:"translateSwitch"`
	TransTargetValue int    `json:"transTargetValue"`
	Client           string `json:"client"`
	OriginalTag      string `json:"originalTag"`
}

// SubmitFile is one resolved audio source ready for batch submission.
type SubmitFile struct {
	FileID   string    `json:"fileId"`
	FileSize int64     `json:"fileSize"`
	Tag      SubmitTag `json:"tag"`
}

// NewSubmitFile builds the submission record for a resolved remote audio
// file. The display name becomes the job title and is how completed jobs
// are matched back to episodes.
func NewSubmitFile(fileID string, size int64, displayName string) SubmitFile {
	return SubmitFile{
		FileID:   fileID,
		FileSize: size,
		Tag: SubmitTag{
			FileType: "net_source",
			ShowName: displayName,
			Lang:     "cn",
			Client:   "web",
		},
	}
}
