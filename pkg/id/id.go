// Package id generates time-sortable identifiers for runs and orders.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// OrderPrefix prefixes every client order id.
const OrderPrefix = "rsi-bot-"

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic keeps ids from the same millisecond increasing.
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID whose timestamp part is t.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// OrderLinkID returns a client order id of the form "rsi-bot-<ulid>".
func OrderLinkID() string {
	return OrderPrefix + New()
}

// Time extracts the timestamp of a ULID, with or without OrderPrefix.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(strings.TrimPrefix(s, OrderPrefix))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
