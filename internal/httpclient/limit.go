package httpclient

import (
	"bytes"
	"io"
)

// ReadLimited reads at most limit bytes of r and reports whether more data
// was available. A limit <= 0 reads everything.
func ReadLimited(r io.Reader, limit int64) (data []byte, truncated bool, err error) {
	if limit <= 0 {
		data, err = io.ReadAll(r)
		return data, false, err
	}
	data, err = io.ReadAll(&io.LimitedReader{R: r, N: limit + 1})
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ErrorBody returns the trimmed text of an error response, capped at limit
// bytes. Read errors yield an empty body.
func ErrorBody(r io.Reader, limit int64) []byte {
	data, _, err := ReadLimited(r, limit)
	if err != nil {
		return nil
	}
	return bytes.TrimSpace(data)
}
