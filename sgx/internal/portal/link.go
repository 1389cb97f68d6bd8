package portal

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var idSegment = regexp.MustCompile(`/(\d+)/`)

// ParseLink recovers the identifier and file name from a link built by
// Link. The identifier is the first all-digit path segment; the file name
// is the last segment.
func ParseLink(link string) (id int, fileName string, err error) {
	m := idSegment.FindStringSubmatch(link)
	if m == nil {
		return 0, "", fmt.Errorf("portal: no identifier segment in %q", link)
	}
	id, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("portal: identifier in %q: %w", link, err)
	}
	i := strings.LastIndexByte(link, '/')
	fileName = link[i+1:]
	if fileName == "" {
		return 0, "", fmt.Errorf("portal: no file name in %q", link)
	}
	return id, fileName, nil
}

// DispositionFilename extracts the filename parameter from a
// Content-Disposition header value. It returns "" when the header is empty
// or names no usable file. Directory components are stripped.
func DispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	var name string
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	} else {
		// Some servers send unquoted names with characters ParseMediaType rejects.
		_, after, ok := strings.Cut(header, "filename=")
		if !ok {
			return ""
		}
		name, _, _ = strings.Cut(after, ";")
		name = strings.Trim(strings.TrimSpace(name), `"`)
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
