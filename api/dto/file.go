package dto

type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type FileSummary struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	UploadedAt string `json:"uploaded_at"`
	FileSize   int64  `json:"file_size"`
}

type FileStatusResponse struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	Status      string  `json:"status"`
	UploadedAt  string  `json:"uploaded_at"`
	ProcessedAt *string `json:"processed_at"`
	FileSize    int64   `json:"file_size"`
	Error       *string `json:"error,omitempty"`
}

type FileResultResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Result      string `json:"result"`
	ProcessedAt string `json:"processed_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
