// Package record defines the layout of the shared person record.
package record

import (
	"reflect"
	"unsafe"

	"github.com/srediag/attrshm/pkg/schema"
)

// NotifyMax is the number of watcher slots in the record.
const NotifyMax = 8

// Person is the fixed layout persisted in the backing file. Field order and
// sizes are the on-disk format; changing them invalidates existing files.
type Person struct {
	Name    [64]byte  `attr:"name"`
	Age     int32     `attr:"age"`
	Gender  [8]byte   `attr:"gender"`
	Phone   [24]byte  `attr:"phone"`
	Email   [64]byte  `attr:"email"`
	Address [128]byte `attr:"address"`
	Height  int32     `attr:"height"`
	Weight  int32     `attr:"weight"`

	Watchers [NotifyMax]int32 `attr:"-"`
}

// Layout describes a record for the store: its size, attribute table and
// where the watcher slots live.
type Layout struct {
	Size           int
	Table          *schema.Table
	WatchersOffset int
	NotifyMax      int
}

// SlotOffset returns the byte offset of watcher slot i.
func (l Layout) SlotOffset(i int) int {
	return l.WatchersOffset + i*4
}

// PersonLayout is the layout of Person.
var PersonLayout = Layout{
	Size:           int(unsafe.Sizeof(Person{})),
	Table:          schema.MustFromStruct(reflect.TypeOf(Person{})),
	WatchersOffset: int(unsafe.Offsetof(Person{}.Watchers)),
	NotifyMax:      NotifyMax,
}
