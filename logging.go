package forge

import (
	"io"
	"log"
	"os"
)

// forgeLog is Forge's diagnostic logger, silent by default. It follows
// the teacher's unconditional log.Printf idiom (batch_dag_scheduler.go,
// batch_average_offset.go) rather than a structured logging library; the
// only addition is a mute switch, since a calculation library should not
// write to a caller's stderr unless asked.
var forgeLog = log.New(io.Discard, "forge: ", log.LstdFlags)

// setDebugLogging points forgeLog at stderr when on, or back to
// io.Discard otherwise, so one Calculate call's Options.Debug can never
// leak output into a later, non-debug call.
func setDebugLogging(on bool) {
	if on {
		forgeLog.SetOutput(os.Stderr)
		return
	}
	forgeLog.SetOutput(io.Discard)
}
