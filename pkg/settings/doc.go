// Package settings models the host application's settings tree: an ordered,
// nested mapping from string keys to scalars, mappings and sequences.
//
// The tree is owned by the host for the whole process. Bootstrap code receives
// it by reference and only adds or overwrites keys:
//
//	tree, err := settings.Load("settings.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = tree.Set("cache.backend.redis", "cache", "default")
//	_ = tree.AppendUnique("sites/all/redis-locks.yml", "container_yamls")
//
// Key order is preserved through Decode/Encode so an untouched tree encodes
// back to the same bytes.
package settings
