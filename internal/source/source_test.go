package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds an uncompressed PDF with n blank pages and a correct
// xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestValidatePDF(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, ValidatePDF(writeFile(t, dir, "ok.pdf", minimalPDF(1))))

	err := ValidatePDF(writeFile(t, dir, "fake.pdf", []byte("just some text, not a pdf")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestCountPages(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "three.pdf", minimalPDF(3))

	n, err := NewPageCounter().CountPages(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = NewPageCounter().CountPages(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gita.pdf", minimalPDF(1))
	r := &Resolver{InputDir: dir}

	for _, ref := range []string{"gita.pdf", "gita", filepath.Join(dir, "gita.pdf"), "file://" + filepath.Join(dir, "gita.pdf")} {
		in, err := r.Resolve(context.Background(), ref)
		require.NoError(t, err, ref)
		assert.Equal(t, "gita", in.Stem, ref)
		assert.Equal(t, filepath.Join(dir, "gita.pdf"), in.Path, ref)
		assert.NoError(t, in.Close())
		assert.FileExists(t, in.Path, "local inputs are not removed")
	}

	_, err := r.Resolve(context.Background(), "absent.pdf")
	assert.Error(t, err)
}

func TestResolveHTTP(t *testing.T) {
	pdf := minimalPDF(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/stotra.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(pdf)
	}))
	defer srv.Close()

	r := &Resolver{HTTP: srv.Client()}
	in, err := r.Resolve(context.Background(), srv.URL+"/books/stotra.pdf")
	require.NoError(t, err)
	assert.Equal(t, "stotra", in.Stem)
	got, err := os.ReadFile(in.Path)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)

	require.NoError(t, in.Close())
	assert.NoFileExists(t, in.Path)

	_, err = r.Resolve(context.Background(), srv.URL+"/missing.pdf")
	assert.Error(t, err)
}

type fakeS3 struct {
	data   []byte
	bucket string
	key    string
}

func (f *fakeS3) Download(_ context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	f.bucket, f.key = bucket, key
	n, err := w.WriteAt(f.data, 0)
	return int64(n), err
}

func TestResolveS3(t *testing.T) {
	fake := &fakeS3{data: minimalPDF(1)}
	r := &Resolver{S3: fake}

	in, err := r.Resolve(context.Background(), "s3://books/scans/tattva.pdf")
	require.NoError(t, err)
	defer in.Close()
	assert.Equal(t, "books", fake.bucket)
	assert.Equal(t, "scans/tattva.pdf", fake.key)
	assert.Equal(t, "tattva", in.Stem)
	assert.True(t, strings.HasPrefix(filepath.Base(in.Path), s3TempPrefix))
}

func TestListPDFs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", nil)
	writeFile(t, dir, "a.PDF", nil)
	writeFile(t, dir, "notes.txt", nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	names, err := ListPDFs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.PDF", "b.pdf"}, names)
}

func TestCleanupDir(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, httpTempPrefix+"1.pdf", nil)
	fresh := writeFile(t, dir, s3TempPrefix+"2.pdf", nil)
	other := writeFile(t, dir, "keep.pdf", nil)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	assert.Equal(t, 1, cleanupDir(dir, time.Hour, time.Now()))
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
