// Package largeobject is the large-object uploader (spec §4.5, C6): it
// streams the on-disk serialized index into a Postgres large object inside
// one transaction, then exports it to a server-visible path.
package largeobject

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5"
)

// TransportError wraps a large-object write, export, or unlink failure.
// The caller must roll back the owning transaction on any TransportError.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("largeobject: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

const chunkSize = 1 << 20 // 1 MiB; well under the i32::MAX-per-call ceiling in spec §4.5

// Upload streams localPath into a freshly created large object on tx, then
// exports it to serverPath. It returns the object's oid so the caller can
// unlink it after cutover (or immediately, on failure).
//
// The uploaded byte stream is guaranteed equal to the local file
// byte-for-byte: each lowrite call is retried internally against partial
// writes, and the chunk loop only advances by the number of bytes the
// server actually accepted.
func Upload(ctx context.Context, tx pgx.Tx, localPath, serverPath string) (uint32, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, &TransportError{Op: "open local file", Err: err}
	}
	defer f.Close()

	los := tx.LargeObjects()

	oid, err := los.Create(ctx, 0)
	if err != nil {
		return 0, &TransportError{Op: "lo_create", Err: err}
	}

	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		return 0, &TransportError{Op: "lo_open", Err: err}
	}

	buf := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := writeAll(obj, buf[:n]); err != nil {
				return oid, &TransportError{Op: "lowrite", Err: err}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return oid, &TransportError{Op: "read local file", Err: readErr}
		}
	}

	if _, err := tx.Exec(ctx, "SELECT pg_catalog.lo_export($1, $2)", oid, serverPath); err != nil {
		return oid, &TransportError{Op: "lo_export", Err: err}
	}

	return oid, nil
}

// writeAll calls lowrite repeatedly until every byte in chunk is accepted,
// honoring the interface's documented (but unexpected) support for partial
// writes.
func writeAll(obj *pgx.LargeObject, chunk []byte) error {
	for len(chunk) > 0 {
		n, err := obj.Write(chunk)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("lowrite accepted 0 bytes")
		}
		chunk = chunk[n:]
	}
	return nil
}

// Unlink frees a large object. Safe to call on a zero oid (no-op).
func Unlink(ctx context.Context, tx pgx.Tx, oid uint32) error {
	if oid == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, "SELECT pg_catalog.lo_unlink($1)", oid); err != nil {
		return &TransportError{Op: "lo_unlink", Err: err}
	}
	return nil
}
