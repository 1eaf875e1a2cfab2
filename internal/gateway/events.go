package gateway

// TopicDownload is the bus topic carrying DownloadEvent values.
const TopicDownload = "gateway.download"

// DownloadEvent reports model download progress. Percent never decreases
// within one download and the last event has Done set at 100.
type DownloadEvent struct {
	Model   string `json:"model"`
	Status  string `json:"status"`
	Percent int    `json:"percent"`
	Done    bool   `json:"done"`
}
