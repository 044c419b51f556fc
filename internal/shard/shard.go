// Package shard derives queue routing keys for FIFO message delivery.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// MessageGroup maps a routing key onto one of numGroups FIFO message groups.
// With numGroups=1, all messages share group "00" and are strictly ordered.
// With numGroups>1, keys are distributed by hash so one busy customer does
// not hold up everyone else, while messages for the same key stay ordered.
func MessageGroup(key string, numGroups int) string {
	if numGroups <= 1 {
		return "00"
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	group := h.Sum32() % uint32(numGroups)
	return fmt.Sprintf("%02x", group)
}

// DeduplicationID computes a content hash for a message, so that a
// re-publish of the same payload inside the queue's deduplication window is
// dropped by the broker.
func DeduplicationID(topic, key, body string) string {
	data := fmt.Sprintf("%s#%s#%s", topic, key, body)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
