// Package fixtures builds small documents, archives and messages for tests.
package fixtures

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

const (
	cfbSectorSize = 512
	cfbNoStream   = 0xFFFFFFFF
	cfbEndOfChain = 0xFFFFFFFE
	cfbFatSect    = 0xFFFFFFFD
	cfbFreeSect   = 0xFFFFFFFF
)

// WordCLSID marks a compound file as a Word 97-2003 document
var WordCLSID = []byte{
	0x06, 0x09, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xc0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46,
}

// CFBEntry describes a directory entry below the root. Child and Right are
// indexes into the entry list (0 based), -1 for none.
type CFBEntry struct {
	Name    string
	Storage bool
	Child   int
	Right   int
	Size    uint32
}

// Storage is a leaf storage entry with the given right sibling
func Storage(name string, right int) CFBEntry {
	return CFBEntry{Name: name, Storage: true, Child: -1, Right: right}
}

// Stream is an empty stream entry with the given right sibling
func Stream(name string, right int) CFBEntry {
	return CFBEntry{Name: name, Child: -1, Right: right}
}

// CFB writes a minimal version 3 compound file: header, one FAT sector and
// one directory sector holding the root plus up to three entries. The root's
// child is the first entry; clsid may be nil.
func CFB(t testing.TB, clsid []byte, entries ...CFBEntry) []byte {
	t.Helper()
	require.LessOrEqual(t, len(entries), 3)

	buf := make([]byte, cfbSectorSize*3)
	le := binary.LittleEndian

	// header
	le.PutUint64(buf[0:8], 0xE11AB1A1E011CFD0)
	le.PutUint16(buf[24:26], 0x003E)
	le.PutUint16(buf[26:28], 0x0003)
	le.PutUint16(buf[28:30], 0xFFFE)
	le.PutUint16(buf[30:32], 0x0009)
	le.PutUint16(buf[32:34], 0x0006)
	le.PutUint32(buf[44:48], 1) // FAT sectors
	le.PutUint32(buf[48:52], 1) // directory start
	le.PutUint32(buf[56:60], 4096)
	le.PutUint32(buf[60:64], cfbEndOfChain)
	le.PutUint32(buf[68:72], cfbEndOfChain)
	le.PutUint32(buf[76:80], 0)
	for off := 80; off < cfbSectorSize; off += 4 {
		le.PutUint32(buf[off:off+4], cfbFreeSect)
	}

	// FAT: sector 0 is the FAT itself, sector 1 the directory
	fat := buf[cfbSectorSize : 2*cfbSectorSize]
	le.PutUint32(fat[0:4], cfbFatSect)
	le.PutUint32(fat[4:8], cfbEndOfChain)
	for off := 8; off < cfbSectorSize; off += 4 {
		le.PutUint32(fat[off:off+4], cfbFreeSect)
	}

	dir := buf[2*cfbSectorSize:]
	rootChild := uint32(cfbNoStream)
	if len(entries) > 0 {
		rootChild = 1
	}
	writeDirEntry(dir[0:128], "Root Entry", 5, cfbNoStream, rootChild, 0)
	copy(dir[80:96], clsid)

	for i, e := range entries {
		typ := byte(2)
		if e.Storage {
			typ = 1
		}
		writeDirEntry(dir[(i+1)*128:(i+2)*128], e.Name, typ, dirRef(e.Right), dirRef(e.Child), e.Size)
	}

	return buf
}

func dirRef(i int) uint32 {
	if i < 0 {
		return cfbNoStream
	}
	return uint32(i + 1)
}

func writeDirEntry(b []byte, name string, typ byte, right, child, size uint32) {
	le := binary.LittleEndian
	encoded := utf16.Encode([]rune(name))
	for i, c := range encoded {
		le.PutUint16(b[i*2:i*2+2], c)
	}
	le.PutUint16(b[64:66], uint16((len(encoded)+1)*2))
	b[66] = typ
	b[67] = 1
	le.PutUint32(b[68:72], cfbNoStream)
	le.PutUint32(b[72:76], right)
	le.PutUint32(b[76:80], child)
	le.PutUint32(b[116:120], cfbEndOfChain)
	le.PutUint32(b[120:124], size)
}

// Zip writes an archive whose members hold their own names
func Zip(t testing.TB, names ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Part is a file attached to a fixture message
type Part struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message builds a multipart/mixed message with a plain-text body followed by
// base64 encoded attachments. Without attachments a single-part text message
// is returned.
func Message(messageID, body string, parts ...Part) []byte {
	var b strings.Builder
	b.WriteString("From: Alice <alice@example.com>\r\n")
	b.WriteString("To: bob@example.com\r\n")
	b.WriteString("Subject: Quarterly report\r\n")
	b.WriteString("Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n")
	if messageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(parts) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body)
		return []byte(b.String())
	}

	const boundary = "fixture-boundary-42"
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	for _, p := range parts {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", p.ContentType)
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", p.Filename)
		b.WriteString(wrap(base64.StdEncoding.EncodeToString(p.Content), 76))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
