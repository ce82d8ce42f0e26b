package objectclient

import (
	"path"
	"strings"
)

// AttachmentKey is the object key layout for user uploads.
func AttachmentKey(userID, attachmentID, filename string) string {
	filename = strings.TrimSpace(path.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "" || filename == "." || filename == "/" {
		filename = "file"
	}
	return path.Join("users", userID, "attachments", attachmentID, filename)
}

// ParseURL extracts bucket and key from an s3:// URL or a virtual-hosted
// style URL such as https://my-bucket.s3.us-east-2.amazonaws.com/path/file.pdf.
func ParseURL(u string) (bucket, key string) {
	if rest, ok := strings.CutPrefix(u, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		return bucket, key
	}
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	bucket, _, _ = strings.Cut(host, ".")
	return bucket, key
}
