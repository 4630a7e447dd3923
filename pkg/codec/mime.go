package codec

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cuemby/filebox/pkg/types"
)

const mimeOctetStream = "application/octet-stream"

// Extensions the previews care about, independent of the host's mime tables
var knownExtensions = map[string]string{
	".csv":  types.MimeCSV,
	".tsv":  types.MimeTSV,
	".tab":  types.MimeTSV,
	".json": types.MimeJSON,
	".html": types.MimeHTML,
	".htm":  types.MimeHTML,
}

// DetectMimeType guesses the MIME type of a file from its name, falling back
// to sniffing the content. Parameters such as charset are dropped.
func DetectMimeType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := knownExtensions[ext]; ok {
		return t
	}
	if ext != "" {
		if t := baseType(mime.TypeByExtension(ext)); t != "" {
			return t
		}
	}
	if len(data) == 0 {
		return mimeOctetStream
	}
	if t := baseType(http.DetectContentType(data)); t != "" {
		return t
	}
	return mimeOctetStream
}

func baseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return t
}
