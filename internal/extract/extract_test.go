package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestTextFromBytesPlainText(t *testing.T) {
	got, err := TextFromBytes(context.Background(), []byte("  Payment is due in thirty days.  \n"), "text/plain; charset=utf-8", "terms.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Payment is due in thirty days." {
		t.Fatalf("got %q", got)
	}
}

func TestTextFromBytesInvalidUTF8(t *testing.T) {
	if _, err := TextFromBytes(context.Background(), []byte{0xff, 0xfe, 0xfd}, "text/plain", "bad.txt"); err == nil {
		t.Fatal("expected error for invalid utf-8")
	}
}

func TestTextFromBytesDOCX(t *testing.T) {
	xml := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Services Agreement</w:t></w:r></w:p>
    <w:p><w:r><w:t>The supplier delivers </w:t></w:r><w:r><w:t>monthly reports.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	data := buildDOCX(t, xml)

	got, err := TextFromBytes(context.Background(), data, mimeDOCX, "agreement.docx")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(got, "\n")
	if len(lines) < 2 {
		t.Fatalf("got %q, want one line per paragraph", got)
	}
	if !strings.Contains(lines[0], "Services Agreement") {
		t.Fatalf("first paragraph = %q", lines[0])
	}
	if !strings.Contains(got, "The supplier delivers monthly reports.") {
		t.Fatalf("split runs must join within a paragraph: %q", got)
	}
}

func TestTextFromBytesDOCXDetectedFromZip(t *testing.T) {
	data := buildDOCX(t, `<w:document xmlns:w="ns"><w:p><w:r><w:t>clause</w:t></w:r></w:p></w:document>`)

	// Browsers often label .docx uploads as generic zip.
	got, err := TextFromBytes(context.Background(), data, "application/zip", "upload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if got != "clause" {
		t.Fatalf("got %q", got)
	}
}

func TestTextFromBytesExtensionFallback(t *testing.T) {
	got, err := TextFromBytes(context.Background(), []byte("fallback body"), "application/octet-stream", "notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "fallback body" {
		t.Fatalf("got %q", got)
	}
}

func TestTextFromBytesUnsupportedType(t *testing.T) {
	if _, err := TextFromBytes(context.Background(), []byte("<html></html>"), "text/html", "page.html"); err == nil {
		t.Fatal("expected unsupported mime type error")
	}
}

func TestTextFromBytesDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("<styles/>"))
	zw.Close()

	if _, err := TextFromBytes(context.Background(), buf.Bytes(), mimeDOCX, "broken.docx"); err == nil {
		t.Fatal("expected error when document.xml is absent")
	}
}
