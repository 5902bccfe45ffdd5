package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildTestPDF は1ページ1テキストの最小構成PDFを組み立てます。
func buildTestPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	numObjects := 3 + 2*len(pageTexts)
	offsets := make([]int, numObjects+1)

	writeObj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}

	kids := make([]string, len(pageTexts))
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pageTexts)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, text := range pageTexts {
		pageID := 4 + 2*i
		contentID := pageID + 1
		writeObj(pageID, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentID))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		writeObj(contentID, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", numObjects+1)
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= numObjects; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", numObjects+1, xrefStart)

	return buf.Bytes()
}

func TestExtractTextPageCap(t *testing.T) {
	texts := make([]string, 500)
	for i := range texts {
		texts[i] = fmt.Sprintf("Page %d marker-%d", i+1, i+1)
	}
	data := buildTestPDF(t, texts)

	text, err := ExtractText(data, TextLimits{MaxPages: 2, MaxChars: 8000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "marker-1") || !strings.Contains(text, "marker-2") {
		t.Errorf("expected text from the first two pages, got %q", text)
	}
	if strings.Contains(text, "marker-3") {
		t.Errorf("expected no text beyond the page cap, got %q", text)
	}
}

func TestExtractTextCharCap(t *testing.T) {
	pageText := strings.TrimSpace(strings.Repeat("lorem ipsum dolor ", 30))
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = pageText
	}
	data := buildTestPDF(t, texts)

	text, err := ExtractText(data, TextLimits{MaxPages: 10, MaxChars: 800})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(text) == 0 {
		t.Fatal("expected non-empty text")
	}
	if len(text) > 800 {
		t.Errorf("expected at most 800 chars, got %d", len(text))
	}
}

func TestExtractTextEmpty(t *testing.T) {
	data := buildTestPDF(t, []string{"", ""})

	_, err := ExtractText(data, TextLimits{MaxPages: 2, MaxChars: 8000})
	var exErr *ExtractError
	if !errors.As(err, &exErr) || exErr.Kind != KindEmpty {
		t.Fatalf("expected KindEmpty, got %v", err)
	}
}

func TestExtractTextCorrupt(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("not a pdf at all"),
		[]byte("%PDF-1.4\nthis is garbage with no xref"),
	} {
		_, err := ExtractText(data, TextLimits{MaxPages: 2, MaxChars: 8000})
		var exErr *ExtractError
		if !errors.As(err, &exErr) || exErr.Kind != KindCorrupt {
			t.Errorf("expected KindCorrupt for %q, got %v", data[:12], err)
		}
	}
}

func TestIsPDFFilename(t *testing.T) {
	cases := map[string]bool{
		"paper.pdf":  true,
		"PAPER.PDF":  true,
		"paper.Pdf":  true,
		"paper.txt":  false,
		"paper":      false,
		"paper.pdfx": false,
	}
	for name, want := range cases {
		if got := IsPDFFilename(name); got != want {
			t.Errorf("IsPDFFilename(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSniffIsPDF(t *testing.T) {
	pdfData := buildTestPDF(t, []string{"hello"})
	if !SniffIsPDF(pdfData) {
		t.Error("expected PDF bytes to be detected as application/pdf")
	}
	if SniffIsPDF([]byte("PK\x03\x04 zip header")) {
		t.Error("expected zip bytes to be rejected")
	}
	if SniffIsPDF([]byte("plain text file")) {
		t.Error("expected plain text to be rejected")
	}
}

func TestCountPages(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "three.pdf")
	if err := os.WriteFile(path, buildTestPDF(t, []string{"one", "two", "three"}), 0o640); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if got := CountPages(path); got != 3 {
		t.Errorf("expected 3 pages, got %d", got)
	}

	broken := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(broken, []byte("not a pdf"), 0o640); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if got := CountPages(broken); got != 0 {
		t.Errorf("expected 0 pages for unparseable file, got %d", got)
	}
}
