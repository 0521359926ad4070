package vfs

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the content type of anything unrecognised.
const OctetStream = "application/octet-stream"

var contentTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xls":  "application/vnd.ms-excel",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
	"txt":  "text/plain",
}

// Classify maps the extension of fileName to a MIME type.
func Classify(fileName string) string {
	i := strings.LastIndex(fileName, ".")
	if i < 0 {
		return OctetStream
	}
	if ct, ok := contentTypes[strings.ToLower(fileName[i+1:])]; ok {
		return ct
	}
	return OctetStream
}

// Sniff detects a MIME type from the leading bytes of a file.
func Sniff(head []byte) string {
	return mimetype.Detect(head).String()
}
