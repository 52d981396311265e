package storage

import (
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
)

// ObjectPath derives the manifest path of one object found while storing a
// bucket reference, and the object's path relative to the queried prefix.
//
// Without a name, a directory expansion uses the key relative to the prefix
// and a single object uses its base name. With a name, a directory expansion
// joins the name and the relative key, and a single object uses the name.
func ObjectPath(name, prefix, key string, multi bool) (entryPath, rel string) {
	if multi {
		rel = relativeKey(prefix, key)
	}
	switch {
	case rel == "" && name == "":
		return path.Base(key), ""
	case rel == "":
		return name, ""
	case name == "":
		return rel, rel
	default:
		return path.Join(name, rel), rel
	}
}

func relativeKey(prefix, key string) string {
	p := strings.TrimSuffix(prefix, "/")
	switch {
	case p == "":
		return key
	case key == p || key == p+"/":
		return ""
	case strings.HasPrefix(key, p+"/"):
		return key[len(p)+1:]
	case strings.HasPrefix(key, p):
		return strings.TrimPrefix(key[len(p):], "/")
	default:
		return key
	}
}

// ObjectRef builds the reference URI of an object: the queried bucket and
// key, plus the object's path relative to them.
func ObjectRef(scheme, bucket, key, rel string) string {
	return scheme + "://" + path.Join(bucket, key, rel)
}

// UncheckedName is the manifest path used when checksumming is disabled.
func UncheckedName(name, bucket, key string) string {
	switch {
	case name != "":
		return name
	case key != "":
		return key
	default:
		return bucket
	}
}

// CapacityError reports that uri expanded to more than maxObjects objects.
func CapacityError(op, uri string, maxObjects int) error {
	return errors.Newf(errors.CodeCapacityExceeded, op,
		"exceeded %d objects tracked, pass a larger max objects to add the reference", maxObjects).
		WithContext("uri", uri)
}
