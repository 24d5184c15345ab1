package job

import "github.com/i474232898/weather-heatmap/internal/weather"

// Message is what a running job posts to its controller: a ProgressMessage,
// a ResultMessage or an ErrorMessage. The last two are terminal.
type Message interface {
	Job() string
	isMessage()
}

// ProgressMessage carries one progress update.
type ProgressMessage struct {
	JobID string `json:"jobId"`
	weather.Progress
}

// ResultMessage carries the frames of a finished job.
type ResultMessage struct {
	JobID  string          `json:"jobId"`
	Frames []weather.Frame `json:"images"`
}

// ErrorMessage reports a failed or cancelled job.
type ErrorMessage struct {
	JobID     string `json:"jobId"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
	Cancelled bool   `json:"cancelled"`
}

func (m ProgressMessage) Job() string { return m.JobID }
func (m ResultMessage) Job() string   { return m.JobID }
func (m ErrorMessage) Job() string    { return m.JobID }

func (ProgressMessage) isMessage() {}
func (ResultMessage) isMessage()   {}
func (ErrorMessage) isMessage()    {}
