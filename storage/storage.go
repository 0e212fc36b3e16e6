package storage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"drainage/table"
)

// ObjectInfo describes one stored object as returned by a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is the object-store boundary for one table root. Keys are relative
// to the table's prefix. Implementations observe ctx on every call and fail
// with typed table errors (NotFound, AccessDenied, Transient, Cancelled).
type Store interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// ParseTablePath splits a storage URI of the form s3://bucket/prefix/ into
// bucket and prefix. Malformed paths fail with an invalid-input error before
// any network access.
func ParseTablePath(raw string) (bucket, prefix string, err error) {
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", table.NewError(table.KindInvalidInput, "", "parsing table path %q: %v", raw, perr)
	}
	if u.Scheme != "s3" {
		return "", "", table.NewError(table.KindInvalidInput, "",
			"unsupported storage scheme %q in %q (supported: s3://)", u.Scheme, raw)
	}
	if u.Host == "" {
		return "", "", table.NewError(table.KindInvalidInput, "", "table path %q is missing a bucket", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
