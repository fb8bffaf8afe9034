package store

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// keySpace builds the persisted key family, optionally under a namespace.
type keySpace struct {
	prefix string
}

// newKeySpace normalizes ns to NFC so visually identical namespaces map to
// the same keys.
func newKeySpace(ns string) keySpace {
	ns = norm.NFC.String(strings.TrimSpace(ns))
	if ns == "" {
		return keySpace{}
	}
	return keySpace{prefix: ns + "/"}
}

func (k keySpace) count() string {
	return k.prefix + "anchor_count"
}

func (k keySpace) indexed(field string, index uint64) string {
	return k.prefix + field + "_" + strconv.FormatUint(index, 10)
}

func (k keySpace) guid(index uint64) string {
	return k.indexed("anchor_guid", index)
}

func (k keySpace) guidLow(index uint64) string {
	return k.indexed("anchor_guid_low", index)
}

func (k keySpace) guidHigh(index uint64) string {
	return k.indexed("anchor_guid_high", index)
}

// fallback returns the x, y and z keys for index.
func (k keySpace) fallback(index uint64) [3]string {
	return [3]string{
		k.indexed("anchor_fallback_x", index),
		k.indexed("anchor_fallback_y", index),
		k.indexed("anchor_fallback_z", index),
	}
}
