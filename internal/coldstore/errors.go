package coldstore

import "errors"

// ErrAuctionNotFound mirrors the teacher's ErrShowNotFound sentinel pattern.
var ErrAuctionNotFound = errors.New("coldstore: auction not found")
