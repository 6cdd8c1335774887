package mavlink

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/c360/mavrouter/errors"
)

// Dialect is the message set decoded and encoded by this package.
var Dialect = common.Dialect

var dialectRW = sync.OnceValues(func() (*dialect.ReadWriter, error) {
	rw := &dialect.ReadWriter{Dialect: Dialect}
	if err := rw.Initialize(); err != nil {
		return nil, errors.WrapFatal(err, "mavlink", "dialect", "dialect initialization")
	}
	return rw, nil
})

type kindIndex struct {
	byID   map[uint32]string
	byName map[string]uint32
}

// kinds maps message ids to upper snake case names, e.g. 0 to "HEARTBEAT"
// and 24 to "GPS_RAW_INT". Built once from the dialect's message types.
var kinds = sync.OnceValue(func() kindIndex {
	idx := kindIndex{
		byID:   make(map[uint32]string, len(Dialect.Messages)),
		byName: make(map[string]uint32, len(Dialect.Messages)),
	}
	for _, msg := range Dialect.Messages {
		t := reflect.TypeOf(msg)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		name := upperSnake(strings.TrimPrefix(t.Name(), "Message"))
		idx.byID[msg.GetID()] = name
		idx.byName[name] = msg.GetID()
	}
	return idx
})

// upperSnake converts a Go identifier such as "GpsRawInt" or "ScaledImu2"
// to "GPS_RAW_INT" or "SCALED_IMU2". Digits stay attached to the word before them.
func upperSnake(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 8)
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// KindName returns the message kind name for msg. Messages missing from the
// dialect are named UNKNOWN_<id>.
func KindName(msg message.Message) string {
	if msg == nil {
		return ""
	}
	return KindForID(msg.GetID())
}

// KindForID returns the kind name for a numeric message id.
func KindForID(id uint32) string {
	if name, ok := kinds().byID[id]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", id)
}

// IDForKind returns the numeric message id for a kind name.
func IDForKind(name string) (uint32, bool) {
	id, ok := kinds().byName[strings.ToUpper(name)]
	return id, ok
}

// Kinds returns the number of message kinds known to the dialect.
func Kinds() int {
	return len(kinds().byID)
}
