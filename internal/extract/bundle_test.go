package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestOpenBundle(t *testing.T) {
	entries := map[string]string{
		"case/deed.pdf":         "%PDF-1.4",
		"case/photos/front.jpg": "jpeg",
		"other/deed.pdf":        "%PDF-1.7",
		"__MACOSX/._deed.pdf":   "fork",
		"case/.DS_Store":        "junk",
		"case/photos/":          "",
	}
	data := zipOf(t, entries, []string{
		"case/deed.pdf", "case/photos/", "case/photos/front.jpg", "other/deed.pdf", "__MACOSX/._deed.pdf", "case/.DS_Store",
	})

	files, err := OpenBundle(data)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"deed.pdf", "deed_1.pdf", "front.jpg"}, names)
	assert.Equal(t, "application/pdf", files[0].MIMEType)
	assert.Equal(t, "%PDF-1.7", string(files[1].Data))
	assert.Equal(t, "image/jpeg", files[2].MIMEType)
}

func TestOpenBundle_NotZip(t *testing.T) {
	_, err := OpenBundle([]byte("definitely not a zip"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "open bundle"))
}

func TestPrepareDocument_HTML(t *testing.T) {
	page := `<html><head><title>Sale Deed</title></head><body>
		<nav>Home | About</nav>
		<article><p>This deed of sale is made between the seller Ram Kumar and the buyer Sita Devi
		for plot number 12 situated at Station Road, Jaipur, Rajasthan 302001.</p></article>
	</body></html>`

	got, err := prepareDocument(File{Name: "deed.html", MIMEType: "text/html", Data: []byte(page)})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", got.MIMEType)
	assert.True(t, strings.HasPrefix(string(got.Data), "Sale Deed\n\n"))
	assert.Contains(t, string(got.Data), "Station Road")
}

func TestPrepareDocument_PassThrough(t *testing.T) {
	in := File{Name: "deed.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")}
	got, err := prepareDocument(in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}
