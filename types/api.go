package types

type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt"`
	// Style is a style name; StyleIndex picks from the catalog when Style is empty.
	Style      string `json:"style"`
	StyleIndex *int   `json:"styleIndex"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type GenerateResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type StatusResponse struct {
	Status     string   `json:"status"`
	State      string   `json:"state"`
	JobID      string   `json:"jobId,omitempty"`
	ModelID    int      `json:"modelId"`
	Styles     []string `json:"styles"`
	Generation uint64   `json:"generation"`
	AutoPeriod int64    `json:"autoPeriodSec"`
}

type StylesResponse struct {
	Styles []string `json:"styles"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}
