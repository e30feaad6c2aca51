package model

import "time"

// Category names the folder an artifact lives in under a case namespace.
type Category string

// Artifact category constants
const (
	CategoryLogs           Category = "logs"
	CategoryScreenshots    Category = "screenshots"
	CategoryDocuments      Category = "documents"
	CategoryJSONData       Category = "json_data"
	CategoryDownloads      Category = "downloads"
	CategoryAICorrections  Category = "ai_corrections"
	CategoryDLCData        Category = "dlc_data"
	CategoryExtractedFiles Category = "extracted_files"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryLogs,
	CategoryScreenshots,
	CategoryDocuments,
	CategoryJSONData,
	CategoryDownloads,
	CategoryAICorrections,
	CategoryDLCData,
	CategoryExtractedFiles,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Content type constants
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
	ContentTypePNG    = "image/png"
	ContentTypeZip    = "application/zip"
)

// ArtifactInfo describes a stored artifact without its body.
type ArtifactInfo struct {
	Key         string    `json:"key"`
	CaseID      string    `json:"case_id"`
	Namespace   string    `json:"namespace"`
	Category    Category  `json:"category"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Well-known json_data artifact names. The suffix is the case namespace.
func DocumentAnalysisFile(ns string) string { return "document_analysis_" + ns + ".json" }
func ImageAnalysisFile(ns string) string    { return "extracted_analysis_" + ns + ".json" }
func DrafterRecordFile(ns string) string    { return "drafter_field_input_data_" + ns + ".json" }
func BlankFieldsFile(ns string) string      { return "blank_fields_" + ns + ".json" }
func ManualInputReportFile(ns string) string {
	return "drafter_manual_input_report_" + ns + ".json"
}

// Fixed status artifact names.
const (
	GeolocationFile       = "geolocation_data.json"
	StartStatusFile       = "drafter_field_start_status.json"
	CompletionStatusFile  = "drafter_field_completion_status.json"
	FinalStatusFile       = "final_completion_status.json"
	CheckpointFilePrefix  = "checkpoint"
	ErrorReportFileSuffix = "_error_report.json"
)
