package objectclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentKey(t *testing.T) {
	assert.Equal(t, "users/u1/attachments/a1/lab_report.pdf", AttachmentKey("u1", "a1", " lab report.pdf "))
	assert.Equal(t, "users/u1/attachments/a1/passwd", AttachmentKey("u1", "a1", "../../etc/passwd"))
	assert.Equal(t, "users/u1/attachments/a1/file", AttachmentKey("u1", "a1", ""))
}

func TestParseURL(t *testing.T) {
	b, k := ParseURL("https://meddy-files.s3.us-east-2.amazonaws.com/users/u1/attachments/a1/x.pdf")
	assert.Equal(t, "meddy-files", b)
	assert.Equal(t, "users/u1/attachments/a1/x.pdf", k)

	b, k = ParseURL("s3://meddy-files/users/u1/x.txt")
	assert.Equal(t, "meddy-files", b)
	assert.Equal(t, "users/u1/x.txt", k)
}
