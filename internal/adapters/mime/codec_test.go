package mime

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/fixtures"
)

type outputPart struct {
	header message.Header
	body   string
}

func (p outputPart) filename() string {
	ah := mail.AttachmentHeader{Header: p.header}
	name, _ := ah.Filename()
	return name
}

func readOutput(t *testing.T, out []byte) (message.Header, []outputPart) {
	t.Helper()

	entity, err := message.Read(bytes.NewReader(out))
	require.NoError(t, err)

	mr := entity.MultipartReader()
	require.NotNil(t, mr, "output must be multipart")

	var parts []outputPart
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		parts = append(parts, outputPart{header: p.Header, body: string(body)})
	}
	return entity.Header, parts
}

func newTestCodec() *Codec {
	return NewCodec("groomer.test", zap.NewNop())
}

func TestSplitSinglePartMessage(t *testing.T) {
	raw := fixtures.Message("<orig@example.com>", "Hello Bob,\r\nsee you soon.")

	email, err := newTestCodec().Split(raw)
	require.NoError(t, err)

	assert.Equal(t, "<orig@example.com>", email.OriginalMessageID)
	assert.Equal(t, "Quarterly report", email.Subject)
	assert.Equal(t, "alice@example.com", email.From)
	assert.Empty(t, email.Attachments)
	require.Len(t, email.KeptParts, 1)
	assert.Equal(t, "text/plain", email.KeptParts[0].ContentType)
	assert.NotContains(t, string(email.RawHeader), "Content-Type")
	assert.Contains(t, string(email.RawHeader), "Subject: Quarterly report")
}

func TestSplitDecodesAttachments(t *testing.T) {
	content := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\nbinary \x00\x01\x02 payload")
	raw := fixtures.Message("<orig@example.com>", "See attached.",
		fixtures.Part{Filename: "report.pdf", ContentType: "application/pdf", Content: content},
		fixtures.Part{Filename: "notes.txt", ContentType: "text/plain; charset=utf-8", Content: []byte("notes")},
	)

	email, err := newTestCodec().Split(raw)
	require.NoError(t, err)

	require.Len(t, email.KeptParts, 1)
	require.Len(t, email.Attachments, 2)
	assert.Equal(t, "report.pdf", email.Attachments[0].OriginalName)
	assert.Equal(t, content, email.Attachments[0].Content)
	assert.Equal(t, "application/pdf", email.Attachments[0].DeclaredType)
	assert.Equal(t, "notes.txt", email.Attachments[1].OriginalName)
	assert.Equal(t, []byte("notes"), email.Attachments[1].Content)
}

func TestSplitFilenameFromContentTypeName(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"body\r\n" +
		"--b1\r\n" +
		"Content-Type: application/octet-stream; name=\"=?utf-8?q?r=C3=A9sum=C3=A9.bin?=\"\r\n\r\n" +
		"data\r\n" +
		"--b1--\r\n"

	email, err := newTestCodec().Split([]byte(raw))
	require.NoError(t, err)

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "résumé.bin", email.Attachments[0].OriginalName)
	assert.Equal(t, []byte("data"), email.Attachments[0].Content)
}

func TestSplitNestedMultipart(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=outer\r\n\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/alternative; boundary=alt\r\n\r\n" +
		"--alt\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"plain\r\n" +
		"--alt\r\n" +
		"Content-Type: text/html\r\n\r\n" +
		"<p>html</p>\r\n" +
		"--alt--\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/mixed; boundary=inner\r\n\r\n" +
		"--inner\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"inner text\r\n" +
		"--inner\r\n" +
		"Content-Type: application/zip\r\n" +
		"Content-Disposition: attachment; filename=hidden.zip\r\n\r\n" +
		"PK\r\n" +
		"--inner--\r\n" +
		"--outer--\r\n"

	email, err := newTestCodec().Split([]byte(raw))
	require.NoError(t, err)

	// the alternative block is kept whole, the inner mixed block is flattened
	require.Len(t, email.KeptParts, 2)
	assert.Equal(t, "multipart/alternative", email.KeptParts[0].ContentType)
	assert.Equal(t, "text/plain", email.KeptParts[1].ContentType)
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "hidden.zip", email.Attachments[0].OriginalName)
}

func TestSplitTopLevelAttachment(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=setup.exe\r\n\r\n" +
		"MZ"

	email, err := newTestCodec().Split([]byte(raw))
	require.NoError(t, err)

	assert.Empty(t, email.KeptParts)
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "setup.exe", email.Attachments[0].OriginalName)
}

func TestSplitUndecodableAttachment(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Transfer-Encoding: x-custom\r\n" +
		"Content-Disposition: attachment; filename=a.pdf\r\n\r\n" +
		"data\r\n" +
		"--b1--\r\n"

	email, err := newTestCodec().Split([]byte(raw))
	require.NoError(t, err)

	require.Len(t, email.Attachments, 1)
	assert.True(t, email.Attachments[0].Dangerous())
	assert.Equal(t, "x-custom", email.Attachments[0].Diagnostics["unknown_encoding"])
}

func TestSplitUnparsableDispositionIsAttachment(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{"unquoted space", "attachment; filename=invoice .exe", "invoice .exe"},
		{"unterminated quote", `attachment; filename="invoice.exe`, "invoice.exe"},
		{"double semicolon", "attachment; filename=invoice.exe;;", "invoice.exe"},
		{"missing separator", "attachment filename=invoice.exe", "invoice.exe"},
		{"attachment without name", "attachment", ""},
		{"garbage without name", "inline; ===", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "From: a@example.com\r\n" +
				"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
				"--b1\r\n" +
				"Content-Type: text/plain\r\n\r\n" +
				"body\r\n" +
				"--b1\r\n" +
				"Content-Type: application/x-msdownload\r\n" +
				"Content-Transfer-Encoding: base64\r\n" +
				"Content-Disposition: " + tt.disposition + "\r\n\r\n" +
				"TVqQAAMAAAAEAAAA\r\n" +
				"--b1--\r\n"

			email, err := newTestCodec().Split([]byte(raw))
			require.NoError(t, err)

			require.Len(t, email.KeptParts, 1)
			require.Len(t, email.Attachments, 1)
			assert.Equal(t, tt.want, email.Attachments[0].OriginalName)
			assert.Equal(t, []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00"), email.Attachments[0].Content)
		})
	}
}

func TestSplitInlineDispositionWithoutNameIsKept(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: inline\r\n\r\n" +
		"body\r\n" +
		"--b1--\r\n"

	email, err := newTestCodec().Split([]byte(raw))
	require.NoError(t, err)

	assert.Empty(t, email.Attachments)
	require.Len(t, email.KeptParts, 1)
}

func TestSplitNestedMessageIsAttachment(t *testing.T) {
	inner := string(fixtures.Message("<inner@example.com>", "forwarded"))
	tests := []struct {
		name   string
		header string
		outer  string
	}{
		{"inline rfc822", "Content-Type: message/rfc822\r\nContent-Disposition: inline\r\n", "multipart/mixed"},
		{"rfc822 without disposition", "Content-Type: message/rfc822\r\n", "multipart/mixed"},
		{"digest default type", "", "multipart/digest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "From: a@example.com\r\n" +
				"Content-Type: " + tt.outer + "; boundary=b1\r\n\r\n" +
				"--b1\r\n" +
				tt.header + "\r\n" +
				inner + "\r\n" +
				"--b1--\r\n"

			email, err := newTestCodec().Split([]byte(raw))
			require.NoError(t, err)

			assert.Empty(t, email.KeptParts)
			require.Len(t, email.Attachments, 1)
			assert.Equal(t, "", email.Attachments[0].OriginalName)
			assert.Contains(t, string(email.Attachments[0].Content), "Message-ID: <inner@example.com>")
		})
	}
}

func TestLenientParam(t *testing.T) {
	assert.Equal(t, "a b.exe", lenientParam("attachment; filename=a b.exe", "filename"))
	assert.Equal(t, `say "hi".exe`, lenientParam(`attachment; filename="say \"hi\".exe"; x`, "filename"))
	assert.Equal(t, "résumé.exe", lenientParam("attachment; filename*=utf-8''r%C3%A9sum%C3%A9.exe;;", "filename"))
	assert.Equal(t, "doc.exe", lenientParam("application/x-msdownload; name=doc.exe;;", "name"))
	assert.Equal(t, "", lenientParam("attachment; filename=x.exe;;", "name"))
	assert.Equal(t, "", lenientParam("attachment; ===", "filename"))
}

func TestSplitMalformed(t *testing.T) {
	codec := newTestCodec()

	_, err := codec.Split(nil)
	assert.Error(t, err)

	_, err = codec.Split([]byte("this is not a header\r\n\r\nbody"))
	assert.Error(t, err)
}

func TestReassembleWithoutAttachments(t *testing.T) {
	codec := newTestCodec()
	raw := fixtures.Message("<orig@example.com>", "Hello Bob,\r\nsee you soon.")

	email, err := codec.Split(raw)
	require.NoError(t, err)

	out, newID, err := codec.Reassemble(email)
	require.NoError(t, err)

	header, parts := readOutput(t, out)
	assert.Equal(t, newID, header.Get("Message-Id"))
	assert.NotEqual(t, "<orig@example.com>", newID)
	assert.True(t, strings.HasSuffix(newID, "@groomer.test>"))
	assert.Equal(t, "Quarterly report", header.Get("Subject"))
	assert.Equal(t, StatusClean, header.Get(HeaderStatus))
	assert.Equal(t, "0", header.Get(HeaderDangerous))

	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].body, "Hello Bob,")
	assert.Contains(t, parts[0].body, "see you soon.")
	assert.Empty(t, parts[0].filename())

	assert.Equal(t, NoticeFilename, parts[1].filename())
	assert.Equal(t, "The attachments of this mail have been sanitized.\nOriginal Message-ID: <orig@example.com>",
		strings.ReplaceAll(parts[1].body, "\r\n", "\n"))
}

func TestReassembleEmptyBody(t *testing.T) {
	email := &core.Email{RawHeader: []byte("Subject: nothing\r\n\r\n")}

	out, _, err := newTestCodec().Reassemble(email)
	require.NoError(t, err)

	_, parts := readOutput(t, out)
	require.Len(t, parts, 2)
	assert.Equal(t, EmptyBody, parts[0].body)
	assert.Contains(t, parts[1].body, "Original Message-ID: unknown")
}

func TestReassembleDropsDangerousContent(t *testing.T) {
	evil := core.NewAttachment("evil.doc", []byte("MACRO-PAYLOAD-MARKER"))
	evil.MainType, evil.SubType = "application", "msword"
	evil.MarkDangerous("macro", true)
	evil.AppendSummary("Application file")

	safe := core.NewAttachment("notes.txt", []byte("safe content"))
	safe.MainType, safe.SubType = "text", "plain"
	safe.AppendSummary("Text file")

	email := &core.Email{
		RawHeader:         []byte("Subject: files\r\n\r\n"),
		OriginalMessageID: "<orig@example.com>",
		KeptParts: []core.KeptPart{{
			ContentType: "text/plain",
			Raw:         []byte("Content-Type: text/plain\r\n\r\nsee attached"),
		}},
		Attachments: []*core.Attachment{evil, safe},
	}

	out, _, err := newTestCodec().Reassemble(email)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "MACRO-PAYLOAD-MARKER")

	header, parts := readOutput(t, out)
	assert.Equal(t, StatusSanitized, header.Get(HeaderStatus))
	assert.Equal(t, "1", header.Get(HeaderDangerous))

	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, p.filename())
	}
	assert.Equal(t, []string{"", NoticeFilename, "evil.doc.log", "notes.txt.log", "notes.txt"}, names)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(parts[2].body), &entry))
	assert.True(t, entry.Dangerous)
	assert.Equal(t, "evil.doc", entry.Filename)
	assert.Equal(t, true, entry.Diagnostics["macro"])

	assert.Equal(t, "safe content", parts[4].body)
	ct, _, err := parts[4].header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
}

func TestReassembleConvertsLegacyCharset(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Transfer-Encoding: 8bit\r\n\r\n" +
		"caf\xe9"

	codec := newTestCodec()
	email, err := codec.Split([]byte(raw))
	require.NoError(t, err)

	out, _, err := codec.Reassemble(email)
	require.NoError(t, err)

	_, parts := readOutput(t, out)
	require.NotEmpty(t, parts)
	_, params, err := parts[0].header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "utf-8", params["charset"])
	assert.Equal(t, "café", parts[0].body)
}

func TestReassembleKeepsAlternativeBlock(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Content-Type: multipart/alternative; boundary=alt\r\n\r\n" +
		"--alt\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"plain\r\n" +
		"--alt\r\n" +
		"Content-Type: text/html\r\n\r\n" +
		"<p>html</p>\r\n" +
		"--alt--\r\n"

	codec := newTestCodec()
	email, err := codec.Split([]byte(raw))
	require.NoError(t, err)
	require.Len(t, email.KeptParts, 2)

	out, _, err := codec.Reassemble(email)
	require.NoError(t, err)

	_, parts := readOutput(t, out)
	require.Len(t, parts, 3)
	assert.Equal(t, "plain", parts[0].body)
	assert.Equal(t, "<p>html</p>", parts[1].body)
}
