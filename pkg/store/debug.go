package store

import (
	"context"
	"fmt"
	"io"

	"github.com/shirou/gopsutil/v3/process"
)

// DebugRecordDetail prints every attribute and watcher slot of the record
// mapped at path. Slots whose process no longer exists are marked stale. A
// missing backing file is reported as an error rather than created.
func DebugRecordDetail(ctx context.Context, path string, w io.Writer, opts ...Option) error {
	s, err := Open(ctx, path, append(opts, WithoutCreate())...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	dev, ino := s.Inode()
	if _, err := fmt.Fprintf(w, "path:%s size:%d dev:%d ino:%d\n", path, s.layout.Size, dev, ino); err != nil {
		return err
	}
	for _, d := range s.Table().Descriptors() {
		v, err := s.Read(d)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "attr:%-8s kind:%-7s offset:%-4d size:%-4d value:%q\n",
			d.Name, d.Kind, d.Offset, d.Size, v.String()); err != nil {
			return err
		}
	}
	slots, err := s.Slots()
	if err != nil {
		return err
	}
	for i, id := range slots {
		state := "empty"
		if id != 0 {
			state = "alive"
			if alive, err := process.PidExistsWithContext(ctx, int32(id)); err == nil && !alive {
				state = "stale"
			}
		}
		if _, err := fmt.Fprintf(w, "slot:%d id:%d state:%s\n", i, id, state); err != nil {
			return err
		}
	}
	return nil
}
