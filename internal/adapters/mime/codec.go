package mime

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdmime "mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/mikey/mail-groomer/internal/core"
)

// Headers added to every sanitized message
const (
	HeaderStatus    = "X-Groomer-Status"
	HeaderDangerous = "X-Groomer-Dangerous"

	StatusClean     = "clean"
	StatusSanitized = "sanitized"

	NoticeFilename = "Sanitized.txt"
	EmptyBody      = "Empty Message"

	// UnnamedAttachment names the log of an attachment declared without a filename
	UnnamedAttachment = "unnamed"
)

const maxMultipartNesting = 16

func init() {
	// Legacy charsets seen in the wild under their common labels
	charset.RegisterEncoding("windows-1250", charmap.Windows1250)
	charset.RegisterEncoding("windows-1251", charmap.Windows1251)
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Codec splits messages into kept parts and attachments and rebuilds the
// sanitized form
type Codec struct {
	domain string
	logger *zap.Logger
}

// NewCodec creates a codec generating Message-IDs under domain
func NewCodec(domain string, logger *zap.Logger) *Codec {
	if domain == "" {
		domain = "mail-groomer.local"
	}
	return &Codec{
		domain: domain,
		logger: logger,
	}
}

// Split parses raw and separates attachments and nested messages from the
// rest. Multipart parts without a filename are flattened when they hold
// attachments and kept whole otherwise.
func (c *Codec) Split(raw []byte) (*core.Email, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.Len() == 0 {
		return nil, errors.New("message has no header")
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	header := mail.Header{Header: message.Header{Header: h}}
	email := &core.Email{
		Raw:               raw,
		OriginalMessageID: strings.TrimSpace(header.Get("Message-Id")),
	}
	if subject, err := header.Subject(); err == nil {
		email.Subject = subject
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		email.From = from[0].Address
	}

	top := h.Copy()
	stripContentFields(&top)
	var rawHeader bytes.Buffer
	if err := textproto.WriteHeader(&rawHeader, top); err != nil {
		return nil, fmt.Errorf("failed to copy header: %w", err)
	}
	email.RawHeader = rawHeader.Bytes()

	mediaType, params, _ := header.ContentType()
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		if err := c.splitMultipart(mediaType, params["boundary"], body, email, 1); err != nil {
			return nil, err
		}
		return email, nil
	}

	if err := c.splitPart(contentFields(h), body, email, 1, false); err != nil {
		return nil, err
	}
	return email, nil
}

// splitMultipart walks the parts of a multipart body. Parts of a digest
// without a Content-Type are messages.
func (c *Codec) splitMultipart(mediaType, boundary string, body []byte, email *core.Email, depth int) error {
	digest := mediaType == "multipart/digest"
	if depth > maxMultipartNesting {
		return fmt.Errorf("multipart nesting exceeds %d levels", maxMultipartNesting)
	}

	mr := textproto.NewMultipartReader(bytes.NewReader(body), boundary)
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read part: %w", err)
		}

		partBody, err := io.ReadAll(p)
		if err != nil {
			return fmt.Errorf("failed to read part body: %w", err)
		}
		if err := c.splitPart(p.Header, partBody, email, depth, digest); err != nil {
			return err
		}
	}
}

// splitPart files one part as an attachment or a kept part. Every message/*
// part is an attachment so that its content goes through the classifier and
// the recursion guard, whatever its disposition.
func (c *Codec) splitPart(h textproto.Header, body []byte, email *core.Email, depth int, digest bool) error {
	mh := message.Header{Header: h}

	declared := strings.ToLower(strings.TrimSpace(h.Get("Content-Type")))
	isMessage := strings.HasPrefix(declared, "message/") || (digest && declared == "")

	if name, ok := attachmentName(mh); ok || isMessage {
		email.Attachments = append(email.Attachments, c.newAttachment(name, h, body))
		return nil
	}

	mediaType, params, _ := mh.ContentType()
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		nested := &core.Email{}
		if err := c.splitMultipart(mediaType, params["boundary"], body, nested, depth+1); err != nil {
			return err
		}
		if len(nested.Attachments) > 0 {
			email.KeptParts = append(email.KeptParts, nested.KeptParts...)
			email.Attachments = append(email.Attachments, nested.Attachments...)
			return nil
		}
	}

	var raw bytes.Buffer
	if err := textproto.WriteHeader(&raw, h); err != nil {
		return fmt.Errorf("failed to copy part header: %w", err)
	}
	raw.Write(body)

	email.KeptParts = append(email.KeptParts, core.KeptPart{
		ContentType: mediaType,
		Raw:         raw.Bytes(),
	})
	return nil
}

// attachmentName reports whether a part is an attachment and its declared
// name. A part qualifies when it names a file, when its disposition is
// attachment, or when its Content-Disposition does not parse. Names in fields
// that fail strict parsing are recovered leniently; a part with no
// recoverable name keeps an empty one.
func attachmentName(h message.Header) (string, bool) {
	ah := mail.AttachmentHeader{Header: h}
	if name, _ := ah.Filename(); name != "" {
		return name, true
	}

	if field := h.Get("Content-Disposition"); field != "" {
		disp, _, err := h.ContentDisposition()
		if err != nil {
			name := lenientParam(field, "filename")
			if name == "" {
				name = lenientParam(h.Get("Content-Type"), "name")
			}
			return name, true
		}
		if strings.EqualFold(disp, "attachment") {
			return "", true
		}
	}

	if field := h.Get("Content-Type"); field != "" {
		if _, _, err := h.ContentType(); err != nil {
			if name := lenientParam(field, "name"); name != "" {
				return name, true
			}
		}
	}
	return "", false
}

// lenientParam extracts the value of key from a header field that failed
// strict parsing. Quotes may be unbalanced, values may hold spaces and the
// separator before the parameter may be missing.
func lenientParam(field, key string) string {
	lower := strings.ToLower(field)
	for _, k := range []string{key, key + "*"} {
		for i := 0; i < len(lower); {
			j := strings.Index(lower[i:], k)
			if j < 0 {
				break
			}
			start := i + j
			i = start + len(k)
			if start > 0 && !strings.ContainsRune("; \t", rune(lower[start-1])) {
				continue
			}
			rest := strings.TrimLeft(field[i:], " \t")
			if !strings.HasPrefix(rest, "=") {
				continue
			}
			return paramValue(strings.TrimLeft(rest[1:], " \t"), k != key)
		}
	}
	return ""
}

func paramValue(v string, extended bool) string {
	var value string
	if strings.HasPrefix(v, `"`) {
		var b strings.Builder
		for i := 1; i < len(v); i++ {
			if v[i] == '\\' && i+1 < len(v) {
				i++
			} else if v[i] == '"' {
				break
			}
			b.WriteByte(v[i])
		}
		value = b.String()
	} else {
		value, _, _ = strings.Cut(v, ";")
	}
	value = strings.TrimSpace(value)

	if extended {
		// charset'language'percent-encoded
		if fields := strings.SplitN(value, "'", 3); len(fields) == 3 {
			value = fields[2]
			if unescaped, err := url.PathUnescape(value); err == nil {
				value = unescaped
			}
		}
	}
	dec := stdmime.WordDecoder{CharsetReader: charset.Reader}
	if decoded, err := dec.DecodeHeader(value); err == nil {
		value = decoded
	}
	return value
}

// newAttachment undoes the transfer encoding only. Content the declared
// encoding cannot decode is kept as transmitted and flagged.
func (c *Codec) newAttachment(name string, h textproto.Header, body []byte) *core.Attachment {
	th := h.Copy()
	th.Del("Content-Type")

	att := core.NewAttachment(name, body)
	att.DeclaredType = h.Get("Content-Type")

	entity, err := message.New(message.Header{Header: th}, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("Unknown transfer encoding",
			zap.String("filename", name),
			zap.String("encoding", h.Get("Content-Transfer-Encoding")))
		att.MarkDangerous("unknown_encoding", h.Get("Content-Transfer-Encoding"))
		return att
	}

	decoded, err := io.ReadAll(entity.Body)
	if err != nil {
		c.logger.Warn("Failed to decode attachment",
			zap.String("filename", name),
			zap.Error(err))
		att.MarkDangerous("undecodable", true)
		return att
	}

	att.Content = decoded
	return att
}

// Reassemble builds the sanitized message: the original header with a fresh
// Message-ID over a multipart/mixed body of kept parts, the notice, a log per
// attachment and the content of attachments found safe.
func (c *Codec) Reassemble(email *core.Email) ([]byte, string, error) {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(email.RawHeader)))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("failed to read original header: %w", err)
	}
	header := mail.Header{Header: message.Header{Header: h}}

	dangerous := 0
	for _, att := range email.Attachments {
		if att.Dangerous() {
			dangerous++
		}
	}
	status := StatusClean
	if dangerous > 0 {
		status = StatusSanitized
	}

	id := uuid.NewString() + "@" + c.domain
	header.SetMessageID(id)
	header.Set("MIME-Version", "1.0")
	header.SetContentType("multipart/mixed", nil)
	header.Set(HeaderStatus, status)
	header.Set(HeaderDangerous, strconv.Itoa(dangerous))

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, header.Header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}

	if len(email.KeptParts) == 0 {
		if err := writeTextPart(mw, "", EmptyBody); err != nil {
			return nil, "", err
		}
	}
	for _, kept := range email.KeptParts {
		if err := c.writeKeptPart(mw, kept); err != nil {
			return nil, "", err
		}
	}

	originalID := email.OriginalMessageID
	if originalID == "" {
		originalID = "unknown"
	}
	notice := "The attachments of this mail have been sanitized.\nOriginal Message-ID: " + originalID
	if err := writeTextPart(mw, NoticeFilename, notice); err != nil {
		return nil, "", err
	}

	for _, att := range email.Attachments {
		if err := writeLogPart(mw, att); err != nil {
			return nil, "", err
		}
		if att.Dangerous() {
			continue
		}
		if err := writeAttachmentPart(mw, att); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close message: %w", err)
	}

	return buf.Bytes(), "<" + id + ">", nil
}

// writeKeptPart re-emits a kept part. Text is converted to UTF-8; multipart
// bodies are copied untouched.
func (c *Codec) writeKeptPart(mw *message.Writer, kept core.KeptPart) error {
	entity, err := message.Read(bytes.NewReader(kept.Raw))
	if entity == nil {
		return fmt.Errorf("failed to read kept part: %w", err)
	}

	h := entity.Header.Copy()
	mediaType, params, _ := h.ContentType()
	if params == nil {
		params = map[string]string{}
	}

	switch {
	case message.IsUnknownEncoding(err):
		c.logger.Warn("Kept part has an unknown transfer encoding, copying as is",
			zap.String("encoding", h.Get("Content-Transfer-Encoding")))
		h.Del("Content-Transfer-Encoding")
		delete(params, "charset")
	case message.IsUnknownCharset(err):
		c.logger.Warn("Kept part has an unknown charset, copying as is",
			zap.String("charset", params["charset"]))
		delete(params, "charset")
	case err != nil:
		return fmt.Errorf("failed to read kept part: %w", err)
	case strings.HasPrefix(mediaType, "text/") && params["charset"] != "":
		params["charset"] = "utf-8"
		switch strings.ToLower(h.Get("Content-Transfer-Encoding")) {
		case "", "7bit":
			h.Set("Content-Transfer-Encoding", "quoted-printable")
		}
	default:
		delete(params, "charset")
	}
	h.SetContentType(mediaType, params)

	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create kept part: %w", err)
	}
	if _, err := io.Copy(pw, entity.Body); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write kept part: %w", err)
	}
	return pw.Close()
}

func writeTextPart(mw *message.Writer, filename, text string) error {
	var h message.Header
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if filename != "" {
		h.SetContentDisposition("attachment", map[string]string{"filename": filename})
	}

	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(pw, text); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write text part: %w", err)
	}
	return pw.Close()
}

// LogEntry is the body of the per-attachment log part
type LogEntry struct {
	Filename    string           `json:"filename"`
	Mimetype    string           `json:"mimetype"`
	Dangerous   bool             `json:"dangerous"`
	Summary     string           `json:"summary"`
	Diagnostics core.Diagnostics `json:"diagnostics"`
}

// NewLogEntry reports the verdict of att
func NewLogEntry(att *core.Attachment) LogEntry {
	return LogEntry{
		Filename:    att.OriginalName,
		Mimetype:    att.Mimetype(),
		Dangerous:   att.Dangerous(),
		Summary:     att.Summary(),
		Diagnostics: att.Diagnostics,
	}
}

func writeLogPart(mw *message.Writer, att *core.Attachment) error {
	body, err := json.MarshalIndent(NewLogEntry(att), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics of %q: %w", att.OriginalName, err)
	}
	name := att.OriginalName
	if name == "" {
		name = UnnamedAttachment
	}
	return writeTextPart(mw, name+".log", string(body))
}

func writeAttachmentPart(mw *message.Writer, att *core.Attachment) error {
	var h message.Header
	h.SetContentType(att.Mimetype(), nil)
	h.Set("Content-Transfer-Encoding", "base64")
	h.SetContentDisposition("attachment", map[string]string{"filename": att.OriginalName})

	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := pw.Write(att.Content); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write attachment %q: %w", att.OriginalName, err)
	}
	return pw.Close()
}

// contentFields returns a copy of h holding only the Content-* fields
func contentFields(h textproto.Header) textproto.Header {
	c := h.Copy()
	fields := c.Fields()
	for fields.Next() {
		if !isContentField(fields.Key()) {
			fields.Del()
		}
	}
	return c
}

func stripContentFields(h *textproto.Header) {
	fields := h.Fields()
	for fields.Next() {
		if isContentField(fields.Key()) {
			fields.Del()
		}
	}
}

func isContentField(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), "content-")
}
