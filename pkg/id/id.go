// Package id generates time-sortable identifiers for journal records and
// exchange client order ids.
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

// MaxClientOrderID is the longest newClientOrderId Binance accepts.
const MaxClientOrderID = 36

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// monotonic within a millisecond
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

func next(t time.Time) ulid.ULID {
	mu.Lock()
	defer mu.Unlock()
	u, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		panic(err)
	}
	return u
}

// New returns a ULID string.
func New() string {
	return next(time.Now()).String()
}

// ClientOrderID returns prefix-ULID, trimmed so the whole id stays within
// MaxClientOrderID. Characters Binance rejects are dropped from prefix.
func ClientOrderID(prefix string) string {
	u := next(time.Now()).String()
	prefix = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, prefix)
	if prefix == "" {
		return u
	}
	if n := MaxClientOrderID - len(u) - 1; len(prefix) > n {
		prefix = prefix[:n]
	}
	return prefix + "-" + u
}

// Time returns the timestamp embedded in a ULID, or in the ULID suffix of a
// client order id.
func Time(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		s = s[i+1:]
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
