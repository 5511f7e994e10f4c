package program

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// exitCodeLogger is the ErrorLogger used by RunMain(). It logs every
// error returned by a routine, and initiates shutdown of the process
// when the first error or termination signal arrives.
type exitCodeLogger struct {
	cancel   context.CancelFunc
	lock     sync.Mutex
	exitCode int
	stopping bool
}

func (l *exitCodeLogger) Log(err error) {
	logrus.WithError(err).Error("Fatal error")
	l.stop(1)
}

func (l *exitCodeLogger) stop(exitCode int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !l.stopping {
		l.stopping = true
		l.exitCode = exitCode
		l.cancel()
	}
}

func (l *exitCodeLogger) getExitCode() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.exitCode
}

// getSignalExitCode returns the exit code that shells use to report
// that a process was terminated by a signal.
func getSignalExitCode(s os.Signal) int {
	if number, ok := s.(syscall.Signal); ok {
		return 128 + int(number)
	}
	return 1
}

// RunMain runs the routine that implements the command of a program,
// together with any routines it spawns, such as the diagnostics web
// server. The process exits once all routines have completed:
//
//   - with exit code 0 if no routine failed,
//
//   - with exit code 1 if a routine returned an error, after canceling
//     all other routines,
//
//   - with exit code 128+n if signal n (SIGINT or SIGTERM) was
//     received, after canceling all routines.
//
// As dependencies are canceled only after the routines depending on
// them have completed, the diagnostics web server keeps running while
// an interrupted transfer reverts the states of its parts.
func RunMain(routine Routine) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &exitCodeLogger{cancel: cancel}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		receivedSignal := <-signalChan
		logrus.WithField("signal", receivedSignal.String()).Warn("Received signal, initiating graceful shutdown")
		l.stop(getSignalExitCode(receivedSignal))
	}()

	run(ctx, l, routine)
	signal.Stop(signalChan)
	cancel()
	os.Exit(l.getExitCode())
}
