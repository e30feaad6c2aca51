// Package extract turns the documents and images of a case bundle into
// normalized extraction records using an external model service.
package extract

import (
	"context"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Kind selects the prompt and output shape of an analysis call.
type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindSitePlan Kind = "site_plan"
)

// File is one input file handed to a Service.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Service abstracts the model call that turns files into a JSON record.
// Implementations can wrap Gemini, an OpenAI-compatible endpoint, etc.
type Service interface {
	Analyze(ctx context.Context, kind Kind, files []File) (json.RawMessage, error)
}

// Logger is the structured logger the adapter reports to.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

var (
	documentExts = map[string]bool{".pdf": true, ".html": true, ".htm": true, ".txt": true}
	imageExts    = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
)

// sitePlanKeywords mark images that are site plans rather than photographs.
var sitePlanKeywords = []string{"site_plan", "site plan", "siteplan", "site-plan", "layout", "naksha"}

// Bundle is the set of analyzable files of a case.
type Bundle struct {
	Documents []File
	Images    []File
	SitePlans []File
	Skipped   []string
}

// Classify sorts files into documents, images and site plans by extension
// and filename. Files of other types are skipped.
func Classify(files []File) Bundle {
	var b Bundle
	for _, f := range files {
		if f.MIMEType == "" {
			f.MIMEType = mimeType(f.Name)
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		switch {
		case documentExts[ext]:
			b.Documents = append(b.Documents, f)
		case imageExts[ext] && isSitePlan(f.Name):
			b.SitePlans = append(b.SitePlans, f)
		case imageExts[ext]:
			b.Images = append(b.Images, f)
		default:
			b.Skipped = append(b.Skipped, f.Name)
		}
	}
	return b
}

func isSitePlan(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, kw := range sitePlanKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func mimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
