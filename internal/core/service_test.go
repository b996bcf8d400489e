package core_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mimeadapter "github.com/mikey/mail-groomer/internal/adapters/mime"
	"github.com/mikey/mail-groomer/internal/classifier"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/fixtures"
	"github.com/mikey/mail-groomer/internal/registry"
	"github.com/mikey/mail-groomer/internal/scanners"
)

type countingClassifier struct {
	core.Classifier
	calls int
}

func (c *countingClassifier) Classify(content []byte, name string) *core.Attachment {
	c.calls++
	return c.Classifier.Classify(content, name)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*core.Verdict
}

func (m *mapCache) Get(_ context.Context, key string) (*core.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, v *core.Verdict, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *mapCache) Cleanup(context.Context) error { return nil }

type recordingMetrics struct {
	bombs     int
	processed int
	failed    []string
	hits      int
	misses    int
}

func (r *recordingMetrics) MessageProcessed(*core.Result)        { r.processed++ }
func (r *recordingMetrics) MessageFailed(reason string)          { r.failed = append(r.failed, reason) }
func (r *recordingMetrics) AttachmentProcessed(*core.Attachment) {}
func (r *recordingMetrics) ArchiveBomb()                         { r.bombs++ }
func (r *recordingMetrics) CacheLookup(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

type harness struct {
	service    *core.GroomerService
	classifier *countingClassifier
	metrics    *recordingMetrics
}

func newHarness(t *testing.T, settings core.ServiceSettings, cache core.VerdictCache) *harness {
	t.Helper()

	logger := zap.NewNop()
	reg := registry.Default()
	cls := &countingClassifier{Classifier: classifier.New(reg, mimeadapter.NewDetector())}
	metrics := &recordingMetrics{}

	svc := core.NewGroomerService(
		mimeadapter.NewCodec("groomer.test", logger),
		cls,
		scanners.NewDispatcher(reg, logger),
		cache,
		metrics,
		logger,
		settings,
	)
	return &harness{service: svc, classifier: cls, metrics: metrics}
}

type part struct {
	filename string
	body     string
}

func outputParts(t *testing.T, out []byte) []part {
	t.Helper()

	entity, err := message.Read(bytes.NewReader(out))
	require.NoError(t, err)
	mr := entity.MultipartReader()
	require.NotNil(t, mr)

	var parts []part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		ah := mail.AttachmentHeader{Header: p.Header}
		name, _ := ah.Filename()
		parts = append(parts, part{filename: name, body: string(body)})
	}
	return parts
}

func TestZipWithMacroMemberIsDropped(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	raw := fixtures.Message("<orig@example.com>", "Please find the report attached.",
		fixtures.Part{
			Filename:    "report.zip",
			ContentType: "application/zip",
			Content:     fixtures.Zip(t, "readme.txt", "script/macro.bin"),
		})

	result, err := h.service.Process(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	att := result.Attachments[0]
	assert.True(t, att.Dangerous())
	assert.Equal(t, true, att.Diagnostics["macro"])
	assert.Equal(t, 1, result.Dangerous)

	parts := outputParts(t, result.Output)
	require.Len(t, parts, 3)
	assert.Equal(t, "", parts[0].filename)
	assert.Contains(t, parts[0].body, "Please find the report attached.")
	assert.Equal(t, mimeadapter.NoticeFilename, parts[1].filename)
	assert.Equal(t, "report.zip.log", parts[2].filename)
	assert.Contains(t, parts[2].body, `"macro": true`)
}

func TestOfficeMacroDocumentIsDropped(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	doc := fixtures.CFB(t, fixtures.WordCLSID,
		fixtures.Storage("Macros", 1),
		fixtures.Stream("WordDocument", -1))
	raw := fixtures.Message("<orig@example.com>", "Minutes attached.",
		fixtures.Part{Filename: "minutes.doc", ContentType: "application/msword", Content: doc},
		fixtures.Part{Filename: "agenda.txt", ContentType: "text/plain", Content: []byte("1. budget\n")})

	result, err := h.service.Process(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, result.Attachments, 2)
	assert.True(t, result.Attachments[0].Dangerous())
	assert.Equal(t, true, result.Attachments[0].Diagnostics["macro"])
	assert.False(t, result.Attachments[1].Dangerous())

	var names []string
	for _, p := range outputParts(t, result.Output) {
		names = append(names, p.filename)
	}
	assert.Equal(t, []string{"", mimeadapter.NoticeFilename, "minutes.doc.log", "agenda.txt.log", "agenda.txt"}, names)
}

func TestZeroAttachmentRoundTrip(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	raw := fixtures.Message("<orig@example.com>", "Nothing attached.")

	result, err := h.service.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "<orig@example.com>", result.OriginalMessageID)
	assert.NotEmpty(t, result.NewMessageID)
	assert.NotEqual(t, result.OriginalMessageID, result.NewMessageID)
	assert.NotEmpty(t, result.ProcessingID)
	assert.Zero(t, result.Dangerous)

	parts := outputParts(t, result.Output)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].body, "Nothing attached.")
	assert.Equal(t, mimeadapter.NoticeFilename, parts[1].filename)
	assert.Equal(t, 1, h.metrics.processed)
}

func nestedMessage(depth int) []byte {
	if depth == 0 {
		return fixtures.Message("<leaf@example.com>", "leaf",
			fixtures.Part{Filename: "leaf.txt", ContentType: "text/plain", Content: []byte("leaf content\n")})
	}
	return fixtures.Message("", "wrapper",
		fixtures.Part{Filename: "forwarded.eml", ContentType: "message/rfc822", Content: nestedMessage(depth - 1)})
}

func TestNestingBeyondMaxDepthIsArchiveBomb(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{MaxDepth: 2}, nil)

	result, err := h.service.Process(context.Background(), nestedMessage(3))
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	level1 := result.Attachments[0]
	assert.True(t, level1.Dangerous())
	assert.Equal(t, "rfc822", level1.SubType)
	assert.NotContains(t, level1.Diagnostics, "archive_bomb")
	assert.Equal(t, true, level1.Diagnostics["nested_dangerous"])

	findings, ok := level1.Diagnostics["nested"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, findings, 1)
	assert.Equal(t, "forwarded.eml", findings[0]["filename"])

	level2 := findings[0]["diagnostics"].(core.Diagnostics)
	assert.Equal(t, true, level2["archive_bomb"])
	assert.NotContains(t, level2, "nested")

	assert.Equal(t, 1, h.metrics.bombs)
}

func TestNestingWithinBoundIsInspected(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{MaxDepth: 2}, nil)

	result, err := h.service.Process(context.Background(), nestedMessage(1))
	require.NoError(t, err)

	level1 := result.Attachments[0]
	assert.NotContains(t, level1.Diagnostics, "archive_bomb")
	assert.NotContains(t, level1.Diagnostics, "nested_dangerous")

	findings := level1.Diagnostics["nested"].([]map[string]any)
	require.Len(t, findings, 1)
	assert.Equal(t, "leaf.txt", findings[0]["filename"])
	assert.Equal(t, false, findings[0]["dangerous"])
	assert.Zero(t, h.metrics.bombs)
}

func TestMaxDepthOneStopsAtFirstNestedMessage(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{MaxDepth: 1}, nil)

	result, err := h.service.Process(context.Background(), nestedMessage(1))
	require.NoError(t, err)

	level1 := result.Attachments[0]
	assert.Equal(t, true, level1.Diagnostics["archive_bomb"])
	assert.NotContains(t, level1.Diagnostics, "nested")
}

func TestCancelledProcessing(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	raw := fixtures.Message("<orig@example.com>", "body",
		fixtures.Part{Filename: "a.txt", ContentType: "text/plain", Content: []byte("a")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.service.Process(ctx, raw)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Equal(t, []string{"cancelled"}, h.metrics.failed)
}

func TestMalformedMessage(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)

	_, err := h.service.Process(context.Background(), []byte("no header here\r\n\r\n"))
	assert.ErrorIs(t, err, core.ErrMalformedMessage)
	assert.Equal(t, []string{"malformed"}, h.metrics.failed)
}

func TestVerdictCacheSkipsClassification(t *testing.T) {
	cache := &mapCache{entries: map[string]*core.Verdict{}}
	h := newHarness(t, core.ServiceSettings{CacheEnabled: true, CacheTTL: time.Hour}, cache)
	raw := fixtures.Message("<orig@example.com>", "body",
		fixtures.Part{Filename: "report.zip", ContentType: "application/zip", Content: fixtures.Zip(t, "script/macro.bin")})

	first, err := h.service.Process(context.Background(), raw)
	require.NoError(t, err)
	second, err := h.service.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, h.classifier.calls)
	assert.Equal(t, 1, h.metrics.hits)
	assert.Equal(t, 1, h.metrics.misses)
	assert.Len(t, cache.entries, 1)

	assert.Equal(t, first.Attachments[0].Diagnostics, second.Attachments[0].Diagnostics)
	assert.Equal(t, first.Attachments[0].Summary(), second.Attachments[0].Summary())
	assert.True(t, second.Attachments[0].Dangerous())
}

func TestEvaluateSingleFile(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)

	att, err := h.service.Evaluate(context.Background(), []byte("MZ\x90\x00"), "invoice.pdf.exe")
	require.NoError(t, err)

	assert.True(t, att.Dangerous())
	assert.Equal(t, ".exe", att.Diagnostics["malicious_extension"])
	assert.Equal(t, "invoice.pdf.exe", att.OriginalName)
}

func TestCacheKey(t *testing.T) {
	a := core.CacheKey([]byte("content"), "a.txt", "text/plain")
	assert.Len(t, a, 64)
	assert.Equal(t, a, core.CacheKey([]byte("content"), "a.txt", "text/plain"))
	assert.NotEqual(t, a, core.CacheKey([]byte("content"), "b.txt", "text/plain"))
	assert.NotEqual(t, a, core.CacheKey([]byte("content"), "a.txt", "application/pdf"))
	assert.NotEqual(t, a, core.CacheKey([]byte("contenu"), "a.txt", "text/plain"))
}

// base64 of a PE header stub
const executablePayload = "TVqQAAMAAAAEAAAA"

func TestUnparsableDispositionExecutableIsDropped(t *testing.T) {
	dispositions := []string{
		"attachment; filename=invoice .exe",
		`attachment; filename="invoice.exe`,
		"attachment; filename=invoice.exe;;",
		"attachment filename=invoice.exe",
	}

	for _, disposition := range dispositions {
		t.Run(disposition, func(t *testing.T) {
			h := newHarness(t, core.ServiceSettings{}, nil)
			raw := "From: alice@example.com\r\n" +
				"To: bob@example.com\r\n" +
				"Subject: invoice\r\n" +
				"Message-ID: <orig@example.com>\r\n" +
				"MIME-Version: 1.0\r\n" +
				"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
				"--b1\r\n" +
				"Content-Type: text/plain\r\n\r\n" +
				"Invoice attached.\r\n" +
				"--b1\r\n" +
				"Content-Type: application/x-msdownload\r\n" +
				"Content-Transfer-Encoding: base64\r\n" +
				"Content-Disposition: " + disposition + "\r\n\r\n" +
				executablePayload + "\r\n" +
				"--b1--\r\n"

			result, err := h.service.Process(context.Background(), []byte(raw))
			require.NoError(t, err)

			require.Len(t, result.Attachments, 1)
			att := result.Attachments[0]
			assert.True(t, att.Dangerous())
			assert.Equal(t, ".exe", att.Diagnostics["malicious_extension"])
			assert.Equal(t, 1, result.Dangerous)
			assert.NotContains(t, string(result.Output), executablePayload)

			parts := outputParts(t, result.Output)
			require.Len(t, parts, 3)
			assert.Contains(t, parts[0].body, "Invoice attached.")
			assert.Equal(t, att.OriginalName+".log", parts[2].filename)
		})
	}
}

func TestAttachmentDispositionWithoutNameIsDropped(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	raw := "From: alice@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"body\r\n" +
		"--b1\r\n" +
		"Content-Type: application/x-msdownload\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"Content-Disposition: attachment\r\n\r\n" +
		executablePayload + "\r\n" +
		"--b1--\r\n"

	result, err := h.service.Process(context.Background(), []byte(raw))
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	assert.Equal(t, true, result.Attachments[0].Diagnostics["no_extension"])
	assert.NotContains(t, string(result.Output), executablePayload)

	parts := outputParts(t, result.Output)
	require.Len(t, parts, 3)
	assert.Equal(t, mimeadapter.UnnamedAttachment+".log", parts[2].filename)
}

func TestInlineForwardedMessageIsInspected(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{}, nil)
	inner := fixtures.Message("<inner@example.com>", "Invoice attached.",
		fixtures.Part{
			Filename:    "invoice.exe",
			ContentType: "application/x-msdownload",
			Content:     []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00"),
		})
	raw := "From: carol@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Fwd: invoice\r\n" +
		"Message-ID: <outer@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=outer-b\r\n\r\n" +
		"--outer-b\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"See the forwarded message.\r\n" +
		"--outer-b\r\n" +
		"Content-Type: message/rfc822\r\n" +
		"Content-Disposition: inline\r\n\r\n" +
		string(inner) + "\r\n" +
		"--outer-b--\r\n"
	require.Contains(t, string(inner), executablePayload)

	result, err := h.service.Process(context.Background(), []byte(raw))
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	forwarded := result.Attachments[0]
	assert.Equal(t, "message", forwarded.MainType)
	assert.True(t, forwarded.Dangerous())
	assert.Equal(t, true, forwarded.Diagnostics["recursion_candidate"])
	assert.Equal(t, true, forwarded.Diagnostics["nested_dangerous"])

	findings, ok := forwarded.Diagnostics["nested"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, findings, 1)
	assert.Equal(t, "invoice.exe", findings[0]["filename"])
	assert.Equal(t, true, findings[0]["dangerous"])

	assert.NotContains(t, string(result.Output), executablePayload)
	parts := outputParts(t, result.Output)
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].body, "See the forwarded message.")
	assert.Equal(t, mimeadapter.UnnamedAttachment+".log", parts[2].filename)
}

func TestInlineForwardedMessageBeyondMaxDepth(t *testing.T) {
	h := newHarness(t, core.ServiceSettings{MaxDepth: 1}, nil)
	raw := "From: carol@example.com\r\n" +
		"Content-Type: multipart/mixed; boundary=outer-b\r\n\r\n" +
		"--outer-b\r\n" +
		"Content-Type: message/rfc822\r\n\r\n" +
		string(nestedMessage(1)) + "\r\n" +
		"--outer-b--\r\n"

	result, err := h.service.Process(context.Background(), []byte(raw))
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	assert.Equal(t, true, result.Attachments[0].Diagnostics["archive_bomb"])
	assert.Equal(t, 1, h.metrics.bombs)
}
