package fileshare

import (
	"fmt"
	"net/url"
	"strings"
)

// Source identifies one backup artifact on a remote file share.
// Account, share and path are derived deterministically from the URL.
type Source struct {
	// URL is the full https URL of the remote file.
	URL     string
	Account string
	Share   string
	// Path is the share-relative file path, without a leading slash.
	Path string
	// SigningKey is the base64 account key. Optional: only required when the
	// local cache is empty and a download must actually happen.
	SigningKey string
}

// ParseSource splits a file-share URL of the shape
// https://<account>.file.core.windows.net/<share>/<path> into its parts.
func ParseSource(rawURL, signingKey string) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Source{}, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Source{}, fmt.Errorf("source url %q: missing scheme or host", rawURL)
	}

	account, _, _ := strings.Cut(u.Hostname(), ".")
	if account == "" {
		return Source{}, fmt.Errorf("source url %q: cannot derive storage account from host", rawURL)
	}

	share, rest, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok || share == "" || rest == "" {
		return Source{}, fmt.Errorf("source url %q: path must name a share and a file", rawURL)
	}

	return Source{
		URL:        rawURL,
		Account:    account,
		Share:      share,
		Path:       rest,
		SigningKey: signingKey,
	}, nil
}

// CanonicalResource returns the resource path that participates in request
// signing: /<account>/<share>/<path>.
func (s Source) CanonicalResource() string {
	return "/" + s.Account + "/" + s.Share + "/" + s.Path
}
