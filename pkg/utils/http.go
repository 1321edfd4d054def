package utils

import "io"

// DrainAndClose drains the remainder of rc before closing it so the HTTP
// transport can reuse the underlying connection.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}
