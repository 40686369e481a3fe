// Package identity derives the stable key that ties an original notification
// to its masked replacement.
package identity

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Identity is a 64-bit digest of (source, native id, tag).
type Identity uint64

// Derive computes the identity of a notification.
//
// An empty tag and an absent tag are the same input: bridges report a missing
// tag as "" and the replacement id must not change depending on which one a
// platform uses.
func Derive(source string, nativeID int, tag string) Identity {
	h := xxhash.New()

	_, _ = h.WriteString(source)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(strconv.Itoa(nativeID))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(tag)

	return Identity(h.Sum64())
}

// NotificationID folds the identity into the platform's 32-bit notification id.
func (id Identity) NotificationID() int32 {
	return int32(uint32(id) ^ uint32(id>>32))
}

func (id Identity) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}
