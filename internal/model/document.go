package model

import (
    "math"
    "strconv"
    "strings"
    "time"
)

// Category values accepted for a document.
const (
    CategoryPersonal  = "personal"
    CategoryWork      = "work"
    CategoryFinancial = "financial"
    CategoryLegal     = "legal"
    CategoryMedical   = "medical"
    CategoryOther     = "other"
)

// Categories lists every valid category in display order.
var Categories = []string{
    CategoryPersonal, CategoryWork, CategoryFinancial,
    CategoryLegal, CategoryMedical, CategoryOther,
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
    for _, v := range Categories {
        if v == c {
            return true
        }
    }
    return false
}

// Document is the metadata record of an uploaded file.  The bytes live in
// the object store under StorageKey; this record owns everything else.
type Document struct {
    ID           string    `json:"id"`
    UserID       string    `json:"userId"`
    Title        string    `json:"title"`
    FileName     string    `json:"fileName"`
    OriginalName string    `json:"originalName"`
    FileSize     int64     `json:"fileSize"`
    FileType     string    `json:"fileType"`
    MimeType     string    `json:"mimeType"`
    Category     string    `json:"category"`
    StorageKey   string    `json:"s3Key"`
    Bucket       string    `json:"s3Bucket"`
    Region       string    `json:"s3Region"`
    IsPublic     bool      `json:"isPublic"`
    Tags         []string  `json:"tags"`
    Description  string    `json:"description"`
    CreatedAt    time.Time `json:"createdAt"`
    UpdatedAt    time.Time `json:"updatedAt"`
}

// DocumentUpdate carries the optional fields of a document edit.  A nil
// pointer means "leave unchanged".
type DocumentUpdate struct {
    Title       *string
    Category    *string
    Description *string
    Tags        *[]string
}

// Empty reports whether the update changes nothing.
func (u DocumentUpdate) Empty() bool {
    return u.Title == nil && u.Category == nil && u.Description == nil && u.Tags == nil
}

// Extension returns the lower-cased extension of the original filename.
func Extension(name string) string {
    i := strings.LastIndex(name, ".")
    if i < 0 || i == len(name)-1 {
        return ""
    }
    return strings.ToLower(name[i+1:])
}

// FormattedSize renders FileSize as "1.5 MB" style text.
func FormattedSize(bytes int64) string {
    if bytes <= 0 {
        return "0 Bytes"
    }
    sizes := []string{"Bytes", "KB", "MB", "GB"}
    i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
    if i >= len(sizes) {
        i = len(sizes) - 1
    }
    v := float64(bytes) / math.Pow(1024, float64(i))
    return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizes[i]
}

// DocumentStats are the per-user aggregates shown next to document lists.
type DocumentStats struct {
    TotalDocs   int64 `json:"totalDocs"`
    PDFCount    int64 `json:"pdfCount"`
    RecentCount int64 `json:"recentCount"`
}

// CategoryCount is one row of the per-category breakdown.
type CategoryCount struct {
    Category string `json:"category"`
    Count    int64  `json:"count"`
}
