package dto

// HarvestRequest asks the service to ingest a public repository into the
// blob store under folderName.
type HarvestRequest struct {
	RepoURL    string `json:"repoUrl" validate:"required"`
	FolderName string `json:"folderName" validate:"required"`
}

// HarvestResponse reports what was actually written to storage.
type HarvestResponse struct {
	Success    bool   `json:"success"`
	FolderName string `json:"folderName"`
	FileCount  int    `json:"fileCount"`
	TotalSize  int64  `json:"totalSize"`
	Message    string `json:"message"`
}
