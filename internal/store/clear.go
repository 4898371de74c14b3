package store

import (
	"slices"

	"cipherchat/internal/domain"
)

// ClearPreserving deletes every key in kv except the ones listed in keep.
func ClearPreserving(kv domain.KVStore, keep ...string) error {
	keys, err := kv.Keys()
	if err != nil {
		return err
	}
	var drop []string
	for _, k := range keys {
		if !slices.Contains(keep, k) {
			drop = append(drop, k)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return kv.Delete(drop...)
}
