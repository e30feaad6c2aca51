package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// maxBundleFileSize caps a single unpacked file.
const maxBundleFileSize = 64 << 20

// OpenBundle unpacks a zip archive into files. Directories, hidden files and
// macOS resource forks are skipped. Nested paths are flattened to their base
// name; on clashes the later entry is renamed with a numeric suffix.
func OpenBundle(data []byte) ([]File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	seen := map[string]int{}
	var files []File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(zf.Name, "__MACOSX/") {
			continue
		}
		name := path.Base(zf.Name)
		if strings.HasPrefix(name, ".") {
			continue
		}
		if zf.UncompressedSize64 > maxBundleFileSize {
			return nil, fmt.Errorf("bundle entry %s too large (%d bytes)", zf.Name, zf.UncompressedSize64)
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open bundle entry %s: %w", zf.Name, err)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxBundleFileSize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read bundle entry %s: %w", zf.Name, err)
		}
		if len(body) > maxBundleFileSize {
			return nil, fmt.Errorf("bundle entry %s too large", zf.Name)
		}

		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			seen[name]++
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		} else {
			seen[name] = 1
		}
		files = append(files, File{Name: name, MIMEType: mimeType(name), Data: body})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
