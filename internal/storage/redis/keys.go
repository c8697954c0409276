package redis

import "fmt"

const keyPrefix = "roomserver"

// listingKey returns the key holding one room's listing JSON.
func listingKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, roomID)
}

// roomsIndexKey returns the SET of listed room ids.
func roomsIndexKey() string {
	return fmt.Sprintf("%s:idx:rooms", keyPrefix)
}
