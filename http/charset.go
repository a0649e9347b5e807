package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"busdelay/ml"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// readBody returns the request body as UTF-8, transcoding from the charset
// declared in Content-Type when there is one.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	charset := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			charset = strings.TrimSpace(params["charset"])
		}
	}

	var src io.Reader = r.Body
	if charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "utf8") {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, &ml.PayloadError{Reason: ml.ReasonUnsupported, Err: fmt.Errorf("unsupported charset %q", charset)}
		}
		src = transform.NewReader(r.Body, enc.NewDecoder())
	}
	return io.ReadAll(src)
}
