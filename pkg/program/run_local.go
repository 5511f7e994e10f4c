package program

import (
	"context"
	"sync"
)

// firstErrorLogger retains the first error returned by any of the
// routines started by RunLocal(), and cancels all of the others when
// it arrives. Subsequent errors are discarded, as they are typically
// caused by the cancelation.
type firstErrorLogger struct {
	once   sync.Once
	err    error
	cancel context.CancelFunc
}

func (l *firstErrorLogger) Log(err error) {
	l.once.Do(func() {
		l.err = err
		l.cancel()
	})
}

// RunLocal runs a routine and all of the routines it spawns within the
// current process, returning once all of them have completed. Unlike
// RunMain(), errors do not terminate the process. The first error is
// returned instead. This makes it possible to use the same routines,
// such as DiagnosticsServer.Serve(), from within unit tests.
func RunLocal(ctx context.Context, routine Routine) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := &firstErrorLogger{cancel: cancel}
	run(ctx, l, routine)
	return l.err
}
